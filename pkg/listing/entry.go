package listing

import "time"

type EntryKind int

const (
	KindWebpage EntryKind = iota
	KindDirectory
	KindFile
)

func (k EntryKind) String() string {
	switch k {
	case KindWebpage:
		return "webpage"
	case KindDirectory:
		return "directory"
	case KindFile:
		return "file"
	}
	return "unknown"
}

// Entry is one listed child of a directory. File is set for KindFile only.
type Entry struct {
	Kind EntryKind `json:"-"`
	Name string    `json:"name"`
	// Path is the absolute filesystem path; never sent to clients.
	Path string       `json:"-"`
	URL  string       `json:"url"`
	File *FileDetails `json:"file,omitempty"`
}

type FileDetails struct {
	Size     string    `json:"size"`
	Bytes    int64     `json:"bytes"`
	Modified time.Time `json:"modified"`
}
