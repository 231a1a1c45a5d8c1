// backfill.go — заполнение QR-кодов у записей, созданных без них.
package service

import (
	"context"
	"log/slog"
)

// BackfillResult — итог прохода заполнения QR-кодов.
type BackfillResult struct {
	Scanned int
	Updated int
	Failed  int
}

// BackfillQRCodes строит QR-код ссылки установки для каждой записи с
// qrcode == nil и сохраняет его через UpdateQRCode. Ошибка отдельной
// записи не останавливает проход; отмена контекста — останавливает.
func (s *ArtifactService) BackfillQRCodes(ctx context.Context) (BackfillResult, error) {
	var res BackfillResult

	items, err := s.store.GetAll(ctx)
	if err != nil {
		return res, storageError(err)
	}

	for _, a := range items {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Scanned++
		if a.QRCode != nil {
			continue
		}

		qr, err := s.links.QRCode(s.links.InstallURL(a.ID, a.Extension))
		if err != nil {
			res.Failed++
			s.logger.Error("Ошибка построения QR-кода",
				slog.String("artifact_id", a.ID.String()),
				slog.String("error", err.Error()),
			)
			continue
		}
		if err := s.store.UpdateQRCode(ctx, a.ID, qr); err != nil {
			res.Failed++
			s.logger.Error("Ошибка сохранения QR-кода",
				slog.String("artifact_id", a.ID.String()),
				slog.String("error", err.Error()),
			)
			continue
		}
		res.Updated++
	}

	s.logger.Info("Заполнение QR-кодов завершено",
		slog.Int("scanned", res.Scanned),
		slog.Int("updated", res.Updated),
		slog.Int("failed", res.Failed),
	)
	return res, nil
}
