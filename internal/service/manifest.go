// manifest.go — OTA-манифест iOS (Apple plist) для itms-services.
package service

import (
	"fmt"

	"howett.net/plist"

	"github.com/bigkaa/opendist/internal/domain/model"
)

type otaManifest struct {
	Items []otaItem `plist:"items"`
}

type otaItem struct {
	Assets   []otaAsset  `plist:"assets"`
	Metadata otaMetadata `plist:"metadata"`
}

type otaAsset struct {
	Kind string `plist:"kind"`
	URL  string `plist:"url"`
}

type otaMetadata struct {
	BundleIdentifier string `plist:"bundle-identifier"`
	BundleVersion    string `plist:"bundle-version"`
	Kind             string `plist:"kind"`
	Title            string `plist:"title"`
}

// RenderManifest строит XML plist с одним элементом: software-package по
// downloadURL и метаданными bundle из ios_metadata. title — имя проекта.
func RenderManifest(downloadURL string, meta model.IOSMetadata, title string) ([]byte, error) {
	m := otaManifest{
		Items: []otaItem{{
			Assets: []otaAsset{{Kind: "software-package", URL: downloadURL}},
			Metadata: otaMetadata{
				BundleIdentifier: meta.BundleIdentifier,
				BundleVersion:    meta.BundleVersion,
				Kind:             "software",
				Title:            title,
			},
		}},
	}

	data, err := plist.MarshalIndent(m, plist.XMLFormat, "\t")
	if err != nil {
		return nil, fmt.Errorf("ошибка сериализации plist: %w", err)
	}
	return data, nil
}
