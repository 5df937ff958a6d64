package cloud

import (
	"encoding/json"
	"fmt"
	"path"

	"github.com/dmitrijs2005/dockeeper/internal/client/models"
	"github.com/dmitrijs2005/dockeeper/internal/common"
)

// MetadataObjectNames lists the remote objects holding the metadata triplet.
var MetadataObjectNames = []string{common.DocumentsObject, common.TagsObject, common.SettingsObject}

// EncodeMetadata splits m into its three remote objects keyed by name.
func EncodeMetadata(m *models.CloudMetadata) (map[string][]byte, error) {
	c := m.Clone()
	if c == nil {
		c = models.NewCloudMetadata()
	}
	c.Normalize()

	parts := map[string]any{
		common.DocumentsObject: c.Documents,
		common.TagsObject:      c.Tags,
		common.SettingsObject:  c.Settings,
	}
	out := make(map[string][]byte, len(parts))
	for name, v := range parts {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", name, err)
		}
		out[name] = b
	}
	return out, nil
}

// DecodeMetadata rebuilds the triplet from objects. Missing objects keep
// their defaults.
func DecodeMetadata(objects map[string][]byte) (*models.CloudMetadata, error) {
	m := models.NewCloudMetadata()
	targets := map[string]any{
		common.DocumentsObject: &m.Documents,
		common.TagsObject:      &m.Tags,
		common.SettingsObject:  &m.Settings,
	}
	for name, dst := range targets {
		b, ok := objects[name]
		if !ok || len(b) == 0 {
			continue
		}
		if err := json.Unmarshal(b, dst); err != nil {
			return nil, fmt.Errorf("decode %s: %w", name, err)
		}
	}
	m.Normalize()
	return m, nil
}

// ObjectPath joins name under the application folder.
func ObjectPath(name string) string {
	return path.Join("/", common.AppFolder, name)
}
