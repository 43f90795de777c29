package internal

type ImportKind string

const (
	KindPayslip   ImportKind = "payslip"
	KindLaborForm ImportKind = "labor_form"
	KindTaxForm   ImportKind = "tax_form"
	KindGeneric   ImportKind = "generic"
)

type CandidateStatus string

const (
	StatusPending  CandidateStatus = "pending"
	StatusImported CandidateStatus = "imported"
	StatusSkipped  CandidateStatus = "skipped"
	StatusError    CandidateStatus = "error"
)

func (s CandidateStatus) Terminal() bool {
	return s == StatusImported || s == StatusSkipped || s == StatusError
}

type ResolutionPolicy string

const (
	PolicyNone    ResolutionPolicy = ""
	PolicySkip    ResolutionPolicy = "skip"
	PolicyReplace ResolutionPolicy = "replace"
	PolicyAdd     ResolutionPolicy = "add"
)

func ParsePolicy(value string) (ResolutionPolicy, bool) {
	switch ResolutionPolicy(value) {
	case PolicyNone, PolicySkip, PolicyReplace, PolicyAdd:
		return ResolutionPolicy(value), true
	default:
		return PolicyNone, false
	}
}

// SessionPath records which terminal action a session has committed to.
// The per-candidate and whole-archive paths are mutually exclusive.
type SessionPath string

const (
	PathUndecided    SessionPath = "undecided"
	PathPerCandidate SessionPath = "per_candidate"
	PathWholeArchive SessionPath = "whole_archive"
)

type DuplicateStatus string

const (
	DuplicateUnknown DuplicateStatus = "unknown"
	DuplicateNew     DuplicateStatus = "new"
	DuplicateFound   DuplicateStatus = "duplicate"
)

type PartyMatch struct {
	PartyID    *string `json:"party_id"`
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
}

type ImportCandidate struct {
	UUID               string          `json:"uuid"`
	SourceFilename     string          `json:"source_filename"`
	ExtractedFields    map[string]any  `json:"extracted_fields"`
	PartyMatch         *PartyMatch     `json:"party_match,omitempty"`
	Status             CandidateStatus `json:"status"`
	ErrorDetail        *string         `json:"error_detail,omitempty"`
	CreatedDocumentRef *string         `json:"created_document_ref,omitempty"`
}

type DuplicateVerdict struct {
	CandidateID        string   `json:"candidate_id"`
	IsDuplicate        bool     `json:"is_duplicate"`
	MatchedExistingRef *string  `json:"matched_existing_ref,omitempty"`
	Confidence         float64  `json:"confidence"`
	MatchedFields      []string `json:"matched_fields"`
}

// DuplicateInfo describes an already persisted document the server matched
// at commit time.
type DuplicateInfo struct {
	ExistingRef   string   `json:"existing_ref"`
	Confidence    float64  `json:"confidence"`
	MatchedFields []string `json:"matched_fields"`
}

type ImportSession struct {
	ID                 string            `json:"id"`
	Kind               ImportKind        `json:"import_kind"`
	SourceArchiveRef   string            `json:"source_archive_ref"`
	CreatedAt          string            `json:"created_at"`
	Candidates         []ImportCandidate `json:"candidates"`
	Path               SessionPath       `json:"path"`
	ArchiveDocumentRef *string           `json:"archive_document_ref,omitempty"`
	Verdicts           VerdictSet        `json:"verdicts"`
}

type SessionCounters struct {
	Total    int `json:"total"`
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
	Error    int `json:"error"`
	Pending  int `json:"pending"`
}

type ConfirmRequest struct {
	EditedFields map[string]any   `json:"edited_fields"`
	Policy       ResolutionPolicy `json:"policy,omitempty"`
}

type CommitStatus string

const (
	CommitSuccess  CommitStatus = "success"
	CommitConflict CommitStatus = "conflict"
	CommitError    CommitStatus = "error"
)

type CommitResponse struct {
	Status        CommitStatus   `json:"status"`
	DocumentRef   string         `json:"document_ref,omitempty"`
	DuplicateInfo *DuplicateInfo `json:"duplicate_info,omitempty"`
	Detail        string         `json:"detail,omitempty"`
}

type ArchiveCommitRequest struct {
	ArchiveRef      string           `json:"archive_ref"`
	Kind            ImportKind       `json:"import_kind"`
	DocumentType    string           `json:"document_type"`
	DuplicatePolicy ResolutionPolicy `json:"duplicate_policy,omitempty"`
}

type ArchiveCommitResponse struct {
	Success       bool           `json:"success"`
	DocumentRef   *string        `json:"document_ref"`
	DuplicateInfo *DuplicateInfo `json:"duplicate_info"`
	Errors        []string       `json:"errors"`
}

type FetchedMailMessage struct {
	Provider   string
	MessageID  string
	Subject    string
	From       string
	ReceivedAt string
	Raw        []byte
}

type MailRow struct {
	ID         int
	Provider   string
	MessageID  string
	Subject    string
	Sender     string
	ReceivedAt string
	Hash       string
	Status     string
	RawRef     string
	SessionID  *string
}

type UploadRow struct {
	ID        int
	Hash      string
	Filename  string
	Kind      ImportKind
	SessionID string
	CreatedAt string
}

type ReportRow struct {
	Position           int
	CandidateID        string
	SourceFilename     string
	Status             string
	DuplicateStatus    string
	MatchedExistingRef *string
	Confidence         *float64
	MatchedFields      string
	CreatedDocumentRef *string
	ErrorDetail        *string
	PartyName          *string
	Fields             string
}

type CandidateEvent struct {
	SessionID   string
	CandidateID string
	Action      string
	Outcome     string
	Policy      ResolutionPolicy
	DocumentRef *string
	Detail      *string
}

type SessionSummary struct {
	ID               string
	Kind             ImportKind
	SourceArchiveRef string
	Path             SessionPath
	Counters         SessionCounters
	UpdatedAt        string
}
