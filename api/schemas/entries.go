package schemas

// -- Entry Schemas --

// EntryStatus tracks an entry through the batch lifecycle.
// Terminal states (Succeeded, Failed) are final and never overwritten.
type EntryStatus string

const (
	EntryPending    EntryStatus = "pending"
	EntryProcessing EntryStatus = "processing"
	EntrySucceeded  EntryStatus = "succeeded"
	EntryFailed     EntryStatus = "failed"
)

// Terminal reports whether the status is final.
func (s EntryStatus) Terminal() bool {
	return s == EntrySucceeded || s == EntryFailed
}

// Entry is one conversation in the inbox list: a display identity plus a
// possible linked detail target reached by activating the entry.
type Entry struct {
	Index       int         `json:"index"`
	Name        string      `json:"name"`
	Company     string      `json:"company,omitempty"`
	Position    string      `json:"position,omitempty"`
	LastMessage string      `json:"lastMessage,omitempty"`
	Time        string      `json:"time,omitempty"`
	UnreadCount int         `json:"unreadCount,omitempty"`
	Unread      bool        `json:"unread"`
	Status      EntryStatus `json:"status"`
}

// EntryDetail holds the fields extracted from an entry's linked detail page.
type EntryDetail struct {
	URL         string   `json:"url"`
	Title       string   `json:"title,omitempty"`
	Salary      string   `json:"salary,omitempty"`
	Location    string   `json:"location,omitempty"`
	Experience  string   `json:"experience,omitempty"`
	Education   string   `json:"education,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Description string   `json:"description,omitempty"`
	CompanyInfo string   `json:"companyInfo,omitempty"`
	WorkAddress string   `json:"workAddress,omitempty"`
}

// EntryFailure records why a single entry could not be processed.
type EntryFailure struct {
	Index  int    `json:"index"`
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// BatchSummary is the aggregate result of a batch run. The batch always
// completes; per-entry failures are collected here instead of aborting.
type BatchSummary struct {
	Succeeded int            `json:"succeeded"`
	Failed    int            `json:"failed"`
	Details   []EntryDetail  `json:"details,omitempty"`
	Failures  []EntryFailure `json:"failures,omitempty"`
}
