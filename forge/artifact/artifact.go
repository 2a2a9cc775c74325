// Package artifact recovers files from agent conversations: extraction from
// transcript text, validation and normalization, and the shared namespace that
// save_artifact writes into.
package artifact

import (
	"errors"
	"sort"
)

var (
	ErrInvalidPath   = errors.New("invalid artifact path")
	ErrPathTraversal = errors.New("path contains directory traversal")
)

// Source tells where a candidate came from.
type Source int

const (
	SourceTranscript Source = iota
	SourceSideChannel
	SourceDirectory
)

func (s Source) String() string {
	switch s {
	case SourceSideChannel:
		return "side-channel"
	case SourceDirectory:
		return "directory"
	default:
		return "transcript"
	}
}

// SourceMode selects which sources feed a pipeline run.
type SourceMode string

const (
	ModeTranscript SourceMode = "transcript"
	ModeTools      SourceMode = "tools"
	ModeBoth       SourceMode = "both"
)

// UsesTranscript reports whether transcript blocks are harvested in this mode.
func (m SourceMode) UsesTranscript() bool { return m == ModeTranscript || m == ModeBoth || m == "" }

// UsesTools reports whether save_artifact writes are harvested in this mode.
func (m SourceMode) UsesTools() bool { return m == ModeTools || m == ModeBoth || m == "" }

// Candidate is an unvalidated file recovered from a conversation.
type Candidate struct {
	RawPath      string
	RawContent   string
	DeclaredType string // fence language tag, if any
	Source       Source
}

// ContentType is the coarse category of an artifact.
type ContentType string

const (
	TypeCode          ContentType = "code"
	TypeMarkup        ContentType = "markup"
	TypeStyle         ContentType = "style"
	TypeConfig        ContentType = "config"
	TypeDocumentation ContentType = "documentation"
	TypeUnknown       ContentType = "unknown"
)

// Artifact is a candidate that passed validation.
type Artifact struct {
	Path        string      `json:"path"`
	Content     string      `json:"-"`
	ContentType ContentType `json:"content_type"`
	Language    string      `json:"language"`
	SizeBytes   int         `json:"size_bytes"`
}

// RejectReason names why a candidate was dropped.
type RejectReason string

const (
	RejectEmptyPath   RejectReason = "empty_path"
	RejectTraversal   RejectReason = "path_traversal"
	RejectReserved    RejectReason = "reserved_path"
	RejectExcluded    RejectReason = "excluded"
	RejectNoExtension RejectReason = "no_extension"
	RejectTooShort    RejectReason = "too_short"
	RejectTooLarge    RejectReason = "too_large"
)

// Report tallies one validation pass.
type Report struct {
	Candidates int
	Accepted   int
	Superseded int // accepted candidates replaced by a later one with the same path
	Rejected   map[RejectReason]int
}

// RejectedTotal sums all rejection reasons.
func (r Report) RejectedTotal() int {
	n := 0
	for _, c := range r.Rejected {
		n += c
	}
	return n
}

// Reasons returns the rejection reasons in stable order.
func (r Report) Reasons() []RejectReason {
	out := make([]RejectReason, 0, len(r.Rejected))
	for reason := range r.Rejected {
		out = append(out, reason)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
