package notify

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	care "carebot-cloud/internal/care/domain"
	"carebot-cloud/internal/observability/metrics"
	robots "carebot-cloud/internal/robots/domain"
)

const defaultTopicPrefix = "carebot"

// Clock provides time for payloads and cooldowns.
type Clock interface {
	Now() time.Time
}

// Message is the JSON payload published for every notification.
type Message struct {
	Type              EventType `json:"type"`
	RobotID           string    `json:"robotId,omitempty"`
	ElderID           string    `json:"elderId,omitempty"`
	Connectivity      string    `json:"connectivity,omitempty"`
	OfflineForSeconds int64     `json:"offlineForSeconds,omitempty"`
	MedicationName    string    `json:"medicationName,omitempty"`
	Location          string    `json:"location,omitempty"`
	OccurredAt        time.Time `json:"occurredAt"`
	Title             string    `json:"title"`
	Body              string    `json:"body"`
}

type sendRecord struct {
	at   time.Time
	hash string
}

// SinkNotifier renders notifications and publishes them on per-subject topics.
type SinkNotifier struct {
	sink         Sink
	prefix       string
	templates    map[EventType]*Template
	clock        Clock
	logger       *zap.Logger
	mu           sync.Mutex
	sent         map[string]sendRecord
	cooldown     time.Duration
	dedupeWindow time.Duration
}

// Option configures the notifier.
type Option func(*SinkNotifier)

// WithClock overrides the default clock.
func WithClock(clock Clock) Option {
	return func(n *SinkNotifier) {
		if clock != nil {
			n.clock = clock
		}
	}
}

// WithCooldown sets a minimum interval between notifications for the same subject and type.
func WithCooldown(interval time.Duration) Option {
	return func(n *SinkNotifier) {
		if interval > 0 {
			n.cooldown = interval
		}
	}
}

// WithDedupeWindow suppresses identical notifications within the window.
func WithDedupeWindow(window time.Duration) Option {
	return func(n *SinkNotifier) {
		if window > 0 {
			n.dedupeWindow = window
		}
	}
}

// WithTopicPrefix sets the first topic segment.
func WithTopicPrefix(prefix string) Option {
	return func(n *SinkNotifier) {
		prefix = strings.Trim(prefix, "/ ")
		if prefix != "" {
			n.prefix = prefix
		}
	}
}

// WithTemplate replaces the template of one event type.
func WithTemplate(t EventType, tpl *Template) Option {
	return func(n *SinkNotifier) {
		if tpl != nil {
			n.templates[t] = tpl
		}
	}
}

// WithLogger sets the logger used for delivery failures.
func WithLogger(logger *zap.Logger) Option {
	return func(n *SinkNotifier) {
		if logger != nil {
			n.logger = logger
		}
	}
}

// NewSinkNotifier constructs a notifier publishing to sink.
func NewSinkNotifier(sink Sink, opts ...Option) (*SinkNotifier, error) {
	if sink == nil {
		return nil, errors.New("notifier: nil sink")
	}
	templates, err := defaultTemplateSet()
	if err != nil {
		return nil, err
	}
	n := &SinkNotifier{
		sink:      sink,
		prefix:    defaultTopicPrefix,
		templates: templates,
		clock:     systemClock{},
		logger:    zap.NewNop(),
		sent:      make(map[string]sendRecord),
	}
	for _, opt := range opts {
		opt(n)
	}
	n.logger = n.logger.Named("notify")
	return n, nil
}

// StatusChanged announces that a robot reconnected.
func (n *SinkNotifier) StatusChanged(ctx context.Context, robot robots.Robot) error {
	now := n.clock.Now().UTC()
	msg := Message{
		Type:         EventStatusChanged,
		RobotID:      robot.ID,
		ElderID:      robot.ElderID,
		Connectivity: string(robot.Connectivity),
		OccurredAt:   now,
	}
	data := TemplateData{
		RobotName:    robotName(robot),
		Connectivity: strings.ToLower(string(robot.Connectivity)),
		Battery:      robot.BatteryLevel,
		OccurredAt:   now.Format(time.RFC3339),
	}
	return n.dispatch(ctx, n.topic("robots", robot.ID, "status"), robot.ID, msg, data)
}

// Offline announces a robot outage.
func (n *SinkNotifier) Offline(ctx context.Context, robot robots.Robot, offlineFor time.Duration) error {
	now := n.clock.Now().UTC()
	if offlineFor < 0 {
		offlineFor = 0
	}
	msg := Message{
		Type:              EventOffline,
		RobotID:           robot.ID,
		ElderID:           robot.ElderID,
		Connectivity:      string(robots.Disconnected),
		OfflineForSeconds: int64(offlineFor / time.Second),
		OccurredAt:        now,
	}
	data := TemplateData{
		RobotName:  robotName(robot),
		OfflineFor: offlineFor.Truncate(time.Second).String(),
		OccurredAt: now.Format(time.RFC3339),
	}
	if robot.LastSyncAt != nil {
		data.LastSync = robot.LastSyncAt.UTC().Format(time.RFC3339)
	}
	return n.dispatch(ctx, n.topic("robots", robot.ID, "offline"), robot.ID, msg, data)
}

// MedicationDeferred tells the elder's guardian a dose was postponed.
func (n *SinkNotifier) MedicationDeferred(ctx context.Context, elder care.Elder, medicationName string) error {
	now := n.clock.Now().UTC()
	msg := Message{
		Type:           EventMedicationDeferred,
		ElderID:        elder.ID,
		MedicationName: medicationName,
		OccurredAt:     now,
	}
	data := TemplateData{
		ElderName:      elderName(elder),
		MedicationName: medicationName,
		OccurredAt:     now.Format(time.RFC3339),
	}
	return n.dispatch(ctx, n.topic("elders", elder.ID, "medication-deferred"), elder.ID+"|"+medicationName, msg, data)
}

// Emergency raises an emergency alert for the elder.
func (n *SinkNotifier) Emergency(ctx context.Context, elder care.Elder, robot robots.Robot, location string) error {
	now := n.clock.Now().UTC()
	msg := Message{
		Type:       EventEmergency,
		RobotID:    robot.ID,
		ElderID:    elder.ID,
		Location:   location,
		OccurredAt: now,
	}
	data := TemplateData{
		RobotName:  robotName(robot),
		ElderName:  elderName(elder),
		Location:   location,
		OccurredAt: now.Format(time.RFC3339),
	}
	return n.dispatch(ctx, n.topic("elders", elder.ID, "emergency"), elder.ID, msg, data)
}

func (n *SinkNotifier) dispatch(ctx context.Context, topic, subject string, msg Message, data TemplateData) error {
	tpl := n.templates[msg.Type]
	title, body, err := tpl.Render(data)
	if err != nil {
		metrics.IncNotification(string(msg.Type), metrics.ResultError)
		return err
	}
	msg.Title = title
	msg.Body = body
	release, ok := n.reserve(subject, msg.Type, body)
	if !ok {
		metrics.IncNotification(string(msg.Type), "suppressed")
		return nil
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		release()
		metrics.IncNotification(string(msg.Type), metrics.ResultError)
		return err
	}
	if err := n.sink.Publish(ctx, topic, payload); err != nil {
		release()
		metrics.IncNotification(string(msg.Type), metrics.ResultError)
		n.logger.Warn("notification publish failed", zap.String("topic", topic), zap.Error(err))
		return err
	}
	metrics.IncNotification(string(msg.Type), metrics.ResultSuccess)
	return nil
}

func (n *SinkNotifier) topic(parts ...string) string {
	return n.prefix + "/" + strings.Join(parts, "/")
}

// reserve checks cooldown and dedupe and claims the slot in one step, so
// concurrent sends of the same notification cannot both pass. Emergencies are
// never throttled. release undoes the claim after a failed publish.
func (n *SinkNotifier) reserve(subject string, eventType EventType, content string) (release func(), ok bool) {
	noop := func() {}
	if eventType == EventEmergency || (n.cooldown <= 0 && n.dedupeWindow <= 0) {
		return noop, true
	}
	key := notificationKey(subject, eventType)
	claim := sendRecord{at: n.clock.Now().UTC(), hash: hashContent(content)}

	n.mu.Lock()
	defer n.mu.Unlock()
	previous, had := n.sent[key]
	if had {
		if n.cooldown > 0 && claim.at.Sub(previous.at) < n.cooldown {
			return noop, false
		}
		if n.dedupeWindow > 0 && previous.hash == claim.hash && claim.at.Sub(previous.at) < n.dedupeWindow {
			return noop, false
		}
	}
	n.sent[key] = claim
	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		if current, ok := n.sent[key]; !ok || current != claim {
			return
		}
		if had {
			n.sent[key] = previous
		} else {
			delete(n.sent, key)
		}
	}, true
}

func notificationKey(subject string, eventType EventType) string {
	return subject + "|" + string(eventType)
}

func hashContent(content string) string {
	sum := sha1.Sum([]byte(content))
	return hex.EncodeToString(sum[:8])
}

func robotName(robot robots.Robot) string {
	if robot.SerialNumber != "" {
		return robot.SerialNumber
	}
	return robot.ID
}

func elderName(elder care.Elder) string {
	if elder.Name != "" {
		return elder.Name
	}
	return elder.ID
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }
