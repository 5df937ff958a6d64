// Package common contains constants shared by the local cache, the cloud
// providers and the sync engine.
package common

// Keys of the metadata triplet in the local key/value area.
const (
	KeyDocuments = "documents"
	KeyTags      = "tags"
	KeySettings  = "settings"
)

// Well-known remote object names of the metadata triplet.
const (
	DocumentsObject = "documents.json"
	TagsObject      = "tags.json"
	SettingsObject  = "settings.json"
)

// KeyCloudConfig holds the persisted provider connection record.
const KeyCloudConfig = "cloud_config"

// KeyMockCloudState holds the whole state of the mock provider.
const KeyMockCloudState = "mock_cloud_state"

// AppFolder is the private remote namespace of the application.
const AppFolder = "dockeeper"
