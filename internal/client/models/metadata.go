package models

// ProcessingMethod selects where documents are recognized.
type ProcessingMethod string

const (
	ProcessingClientSide ProcessingMethod = "client-side"
	ProcessingAPI        ProcessingMethod = "api"
)

// APIConfig holds credentials for an external recognition provider.
type APIConfig struct {
	Provider string `json:"provider"`
	APIKey   string `json:"apiKey"`
	Enabled  bool   `json:"enabled"`
}

// Activity is one entry of the settings activity log.
type Activity struct {
	Action    string `json:"action"`
	Timestamp string `json:"timestamp"`
}

// AppSettings is the per-user settings singleton. It is replaced wholesale
// on merge.
type AppSettings struct {
	ProcessingMethod ProcessingMethod `json:"processingMethod"`
	APIConfigs       []APIConfig      `json:"apiConfigs"`
	LastActivity     []Activity       `json:"lastActivity"`
}

// DefaultSettings returns the settings used when none were stored yet.
func DefaultSettings() AppSettings {
	return AppSettings{
		ProcessingMethod: ProcessingClientSide,
		APIConfigs:       []APIConfig{},
		LastActivity:     []Activity{},
	}
}

// Clone returns a copy that shares no slices with s.
func (s AppSettings) Clone() AppSettings {
	c := s
	c.APIConfigs = append([]APIConfig{}, s.APIConfigs...)
	c.LastActivity = append([]Activity{}, s.LastActivity...)
	return c
}

// CloudMetadata is the synchronization unit persisted identically on the
// local and the remote side.
type CloudMetadata struct {
	Documents map[string]DocumentMetadata `json:"documents"`
	Tags      []Tag                       `json:"tags"`
	Settings  AppSettings                 `json:"settings"`
}

// NewCloudMetadata returns an empty snapshot with default settings.
func NewCloudMetadata() *CloudMetadata {
	return &CloudMetadata{
		Documents: map[string]DocumentMetadata{},
		Tags:      []Tag{},
		Settings:  DefaultSettings(),
	}
}

// Normalize replaces nil collections with empty ones so the JSON form never
// contains null.
func (m *CloudMetadata) Normalize() {
	if m.Documents == nil {
		m.Documents = map[string]DocumentMetadata{}
	}
	if m.Tags == nil {
		m.Tags = []Tag{}
	}
	if m.Settings.ProcessingMethod == "" {
		m.Settings.ProcessingMethod = ProcessingClientSide
	}
	if m.Settings.APIConfigs == nil {
		m.Settings.APIConfigs = []APIConfig{}
	}
	if m.Settings.LastActivity == nil {
		m.Settings.LastActivity = []Activity{}
	}
}

// Clone returns a copy that shares no maps or slices with m.
func (m *CloudMetadata) Clone() *CloudMetadata {
	if m == nil {
		return nil
	}
	c := &CloudMetadata{
		Documents: make(map[string]DocumentMetadata, len(m.Documents)),
		Tags:      append([]Tag{}, m.Tags...),
		Settings:  m.Settings.Clone(),
	}
	for id, d := range m.Documents {
		c.Documents[id] = d.Clone()
	}
	return c
}

// HasTag reports whether a tag with the given id exists.
func (m *CloudMetadata) HasTag(id string) bool {
	for _, t := range m.Tags {
		if t.ID == id {
			return true
		}
	}
	return false
}
