// Пакет events — публикация событий артефактов в NATS JetStream.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// ArtifactCreated — событие успешной загрузки артефакта.
type ArtifactCreated struct {
	ID         uuid.UUID `json:"id"`
	ProjectID  string    `json:"project_id"`
	Branch     string    `json:"branch"`
	Identifier string    `json:"identifier"`
	Extension  string    `json:"extension"`
	Size       int64     `json:"size"`
	CreatedAt  time.Time `json:"created_at"`
	InstallURL string    `json:"install_url"`
}

// Publisher — получатель событий артефактов.
type Publisher interface {
	PublishArtifactCreated(ctx context.Context, ev ArtifactCreated) error
	Close()
}

// NATSPublisher публикует события в JetStream.
type NATSPublisher struct {
	conn    *nats.Conn
	js      nats.JetStreamContext
	subject string
	logger  *slog.Logger
}

// NewNATSPublisher подключается к NATS и открывает JetStream-контекст.
// Поток (stream) для subject создаётся вне сервиса.
func NewNATSPublisher(url, subject string, logger *slog.Logger, opts ...nats.Option) (*NATSPublisher, error) {
	if subject == "" {
		return nil, errors.New("subject NATS не задан")
	}

	opts = append([]nats.Option{nats.Name("open-dist")}, opts...)
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("ошибка подключения к NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("ошибка инициализации JetStream: %w", err)
	}

	return &NATSPublisher{
		conn:    nc,
		js:      js,
		subject: subject,
		logger:  logger.With(slog.String("component", "events")),
	}, nil
}

// PublishArtifactCreated сериализует событие в JSON и публикует в subject.
func (p *NATSPublisher) PublishArtifactCreated(ctx context.Context, ev ArtifactCreated) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("ошибка сериализации события: %w", err)
	}

	if _, err := p.js.Publish(p.subject, data, nats.Context(ctx), nats.MsgId(ev.ID.String())); err != nil {
		return fmt.Errorf("ошибка публикации в %s: %w", p.subject, err)
	}
	return nil
}

// Close дожидается отправки буферизованных сообщений и закрывает соединение.
func (p *NATSPublisher) Close() {
	if err := p.conn.Drain(); err != nil {
		p.logger.Warn("Ошибка drain соединения NATS", slog.String("error", err.Error()))
		p.conn.Close()
	}
}

// NopPublisher отбрасывает события. Используется, когда OD_NATS_URL не задан.
type NopPublisher struct{}

func (NopPublisher) PublishArtifactCreated(context.Context, ArtifactCreated) error { return nil }

func (NopPublisher) Close() {}

var (
	_ Publisher = (*NATSPublisher)(nil)
	_ Publisher = NopPublisher{}
)
