// installlink.go — ссылки установки и QR-код в виде SVG data URI.
package service

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"strings"

	svg "github.com/ajstarks/svgo"
	"github.com/google/uuid"
	"github.com/skip2/go-qrcode"

	"github.com/bigkaa/opendist/internal/domain/model"
)

const (
	// qrCanvasSize — сторона SVG-изображения QR-кода в пикселях.
	qrCanvasSize = 240
	// qrDataURIPrefix — префикс data URI QR-кода.
	qrDataURIPrefix = "data:image/svg+xml;base64,"
)

// LinkGenerator строит ссылки на артефакт от публичного базового URL.
type LinkGenerator struct {
	baseURL string
}

// NewLinkGenerator создаёт генератор. baseURL — без завершающего слэша.
func NewLinkGenerator(baseURL string) *LinkGenerator {
	return &LinkGenerator{baseURL: strings.TrimRight(baseURL, "/")}
}

// DownloadURL — прямая ссылка на бинарный файл.
func (g *LinkGenerator) DownloadURL(id uuid.UUID) string {
	return fmt.Sprintf("%s/artifacts/%s/download", g.baseURL, id)
}

// ManifestURL — ссылка на OTA-манифест iOS.
func (g *LinkGenerator) ManifestURL(id uuid.UUID) string {
	return fmt.Sprintf("%s/artifacts/%s/ios-plist", g.baseURL, id)
}

// InstallURL — ссылка установки: itms-services для ipa, прямая загрузка для остальных.
func (g *LinkGenerator) InstallURL(id uuid.UUID, ext model.Extension) string {
	if ext.IsIOS() {
		return "itms-services://?action=download-manifest&url=" + g.ManifestURL(id)
	}
	return g.DownloadURL(id)
}

// QRCode кодирует content в QR (уровень коррекции Low) и возвращает
// data:image/svg+xml;base64 с изображением 240×240.
func (g *LinkGenerator) QRCode(content string) (string, error) {
	q, err := qrcode.New(content, qrcode.Low)
	if err != nil {
		return "", fmt.Errorf("ошибка построения QR-кода: %w", err)
	}

	data := renderQRSVG(q.Bitmap())
	return qrDataURIPrefix + base64.StdEncoding.EncodeToString(data), nil
}

// renderQRSVG рисует матрицу модулей (с рамкой тишины) одним path.
// viewBox совпадает с размером матрицы, поэтому модуль — единичный квадрат.
func renderQRSVG(bitmap [][]bool) []byte {
	n := len(bitmap)

	var d strings.Builder
	for y, row := range bitmap {
		for x := 0; x < len(row); {
			if !row[x] {
				x++
				continue
			}
			start := x
			for x < len(row) && row[x] {
				x++
			}
			fmt.Fprintf(&d, "M%d %dh%dv1h-%dz", start, y, x-start, x-start)
		}
	}

	var buf bytes.Buffer
	canvas := svg.New(&buf)
	canvas.Startview(qrCanvasSize, qrCanvasSize, 0, 0, n, n)
	canvas.Rect(0, 0, n, n, "fill:#ffffff")
	if d.Len() > 0 {
		canvas.Path(d.String(), "fill:#000000;shape-rendering:crispEdges")
	}
	canvas.End()
	return buf.Bytes()
}
