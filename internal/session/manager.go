package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/foxseedlab/koewake/internal/audio"
	"github.com/foxseedlab/koewake/internal/config"
	"github.com/foxseedlab/koewake/internal/diarization"
	"github.com/foxseedlab/koewake/internal/discord"
	"github.com/foxseedlab/koewake/internal/logging"
	"github.com/foxseedlab/koewake/internal/observability"
	"github.com/foxseedlab/koewake/internal/publisher"
	"github.com/foxseedlab/koewake/internal/repository"
	"github.com/foxseedlab/koewake/internal/transcript"
	"github.com/foxseedlab/koewake/internal/transport"
	"github.com/foxseedlab/koewake/internal/webhook"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	deliveryTimeout   = 5 * time.Second
	finalizeTimeout   = 30 * time.Second
	deliveryQueueSize = 256
)

const (
	sinkRepository = "repository"
	sinkPublisher  = "publisher"
	sinkDiscord    = "discord"
	sinkWebhook    = "webhook"
)

// Listener receives what the user should see. Calls may come from any
// goroutine.
type Listener interface {
	StateChanged(state State)
	EntryAppended(entry transcript.Entry)
	PartialReceived(label, text string)
	Failed(message string)
}

// Manager runs one recording at a time and delivers its transcript to the
// configured sinks.
type Manager struct {
	cfg       *config.Config
	repo      repository.Repository
	dialer    transport.Dialer
	newSource audio.SourceFactory
	publisher publisher.Publisher
	discord   discord.Client
	webhook   webhook.Sender
	metrics   *observability.Metrics
	logger    zerolog.Logger
	now       func() time.Time

	mu         sync.Mutex
	current    *recordingObserver
	starting   bool
	listener   Listener
	finalizing sync.WaitGroup
}

func NewManager(cfg *config.Config, repo repository.Repository, dialer transport.Dialer, newSource audio.SourceFactory, pub publisher.Publisher, dc discord.Client, wh webhook.Sender, metrics *observability.Metrics) *Manager {
	if metrics == nil {
		metrics = observability.DefaultMetrics
	}
	return &Manager{
		cfg:       cfg,
		repo:      repo,
		dialer:    dialer,
		newSource: newSource,
		publisher: pub,
		discord:   dc,
		webhook:   wh,
		metrics:   metrics,
		logger:    logging.WithComponent("manager"),
		now:       time.Now,
	}
}

func (m *Manager) SetListener(l Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listener = l
}

func (m *Manager) currentListener() Listener {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listener
}

// State reports the state of the latest session, Idle when there is none.
func (m *Manager) State() State {
	m.mu.Lock()
	cur := m.current
	starting := m.starting
	m.mu.Unlock()
	state := StateIdle
	if cur != nil {
		state = cur.session.State()
	}
	if starting && state == StateIdle {
		return StateConnecting
	}
	return state
}

// RecoverOrphans closes recordings a previous process left running.
func (m *Manager) RecoverOrphans(ctx context.Context) error {
	n, err := m.repo.CompleteOrphanedRecordings(ctx, m.now(), stopReasonOrphaned)
	if err != nil {
		return fmt.Errorf("complete orphaned recordings: %w", err)
	}
	if n > 0 {
		m.logger.Warn().Int("recordings", n).Msg("closed recordings left running by a previous process")
	}
	return nil
}

// Start begins a new recording. It does nothing while another one is still
// connecting, active or closing.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.starting || (m.current != nil && m.current.session.State().Running()) {
		m.mu.Unlock()
		m.logger.Debug().Msg("start ignored; a recording is already running")
		return nil
	}
	m.starting = true
	m.mu.Unlock()

	obs, err := m.prepare(ctx)
	if err != nil {
		m.mu.Lock()
		m.starting = false
		m.mu.Unlock()
		if l := m.currentListener(); l != nil {
			l.Failed(messageUnknownFailure)
		}
		return err
	}

	m.mu.Lock()
	m.current = obs
	m.mu.Unlock()

	err = obs.session.Start(ctx)

	m.mu.Lock()
	m.starting = false
	m.mu.Unlock()

	if err != nil {
		if obs.session.State() == StateIdle {
			// A rolled back start never reaches Closed, so close the row here.
			obs.closeDeliveries()
			m.completeRecording(obs, stopReasonStartFailed, 0)
		}
		return err
	}
	return nil
}

func (m *Manager) prepare(ctx context.Context) (*recordingObserver, error) {
	created, err := m.repo.CreateRecording(ctx, repository.CreateRecordingInput{
		ID:         uuid.NewString(),
		BackendURL: m.cfg.BackendURL,
		StartedAt:  m.now(),
	})
	if err != nil {
		m.logger.Error().Err(err).Msg("failed to create recording in repository")
		return nil, fmt.Errorf("create recording: %w", err)
	}
	logger := logging.WithRecording("session", created.ID)
	logger.Info().Str("backendUrl", m.cfg.BackendURL).Msg("created recording")

	obs := &recordingObserver{
		manager:    m,
		recording:  created,
		logger:     logger,
		deliveries: make(chan transcript.Entry, deliveryQueueSize),
		delivered:  make(chan struct{}),
	}
	go obs.runDeliveries()
	obs.session = New(created.ID, m.dialer, m.newSource, diarization.NewRoleMap(), transcript.NewLog(), obs, Options{
		BlockSize:      m.cfg.AudioBlockSize,
		QueueFrames:    m.cfg.SendQueueFrames,
		ConnectTimeout: m.cfg.TransportConnectTimeout,
		CloseTimeout:   m.cfg.TransportCloseTimeout,
		Metrics:        m.metrics,
		Logger:         logger,
		Now:            m.now,
	})
	return obs, nil
}

// Stop ends the current recording, if any.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	cur := m.current
	m.mu.Unlock()
	if cur == nil {
		return nil
	}
	return cur.session.Stop(ctx)
}

// Shutdown stops the current recording and waits for transcript delivery.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	cur := m.current
	m.mu.Unlock()
	if cur != nil {
		_ = cur.session.Stop(ctx)
		if cur.session.State() != StateIdle {
			select {
			case <-cur.session.Done():
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	done := make(chan struct{})
	go func() {
		m.finalizing.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) deliverEntry(obs *recordingObserver, entry transcript.Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), deliveryTimeout)
	defer cancel()

	err := m.repo.InsertEntry(ctx, repository.InsertEntryInput{
		RecordingID: obs.recording.ID,
		EntryIndex:  entry.Index,
		SpeakerTag:  int(entry.Tag),
		Role:        roleName(entry.Role),
		Label:       entry.Label(),
		Content:     entry.Text,
		SpokenAt:    entry.ReceivedAt,
	})
	m.recordDelivery(obs, sinkRepository, err)

	err = m.publisher.PublishFinal(ctx, publisher.FinalEntryEvent{
		EventType:   publisher.EventTypeFinal,
		RecordingID: obs.recording.ID,
		Index:       entry.Index,
		SpeakerTag:  int(entry.Tag),
		Role:        roleName(entry.Role),
		Label:       entry.Label(),
		Transcript:  entry.Text,
		SpokenAt:    entry.ReceivedAt,
	})
	m.recordDelivery(obs, sinkPublisher, err)
}

func (m *Manager) recordDelivery(obs *recordingObserver, sink string, err error) {
	if err != nil {
		m.metrics.EntriesDelivered.WithLabelValues(sink, "error").Inc()
		obs.logger.Error().Err(err).Str("sink", sink).Msg("failed to deliver transcript")
		return
	}
	m.metrics.EntriesDelivered.WithLabelValues(sink, "ok").Inc()
}

func (m *Manager) completeRecording(obs *recordingObserver, reason string, entryCount int) {
	ctx, cancel := context.WithTimeout(context.Background(), deliveryTimeout)
	defer cancel()
	if err := m.repo.CompleteRecording(ctx, repository.CompleteRecordingInput{
		RecordingID: obs.recording.ID,
		EndedAt:     m.now(),
		StopReason:  reason,
		EntryCount:  entryCount,
	}); err != nil {
		obs.logger.Error().Err(err).Msg("failed to complete recording")
	}
}

func (m *Manager) finalize(obs *recordingObserver, reason string) {
	entries := obs.session.Entries()
	assignments := obs.session.Assignments()
	endedAt := m.now()
	m.completeRecording(obs, reason, len(entries))

	if len(entries) == 0 {
		obs.logger.Info().Str("reason", reason).Msg("recording ended with no transcript; nothing to deliver")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), finalizeTimeout)
	defer cancel()

	meta := transcriptMetadata{
		RecordingID: obs.recording.ID,
		StartedAt:   obs.recording.StartedAt,
		EndedAt:     endedAt,
		Timezone:    m.cfg.TranscriptTimezone,
		Location:    m.cfg.Location(),
		StopReason:  reason,
	}
	if m.cfg.DiscordChannelID != "" {
		meta.ChannelName = m.discord.ChannelName(m.cfg.DiscordChannelID)
		body := buildTranscriptText(meta, assignments, entries)
		err := m.discord.SendChannelMessageWithFile(discord.FileMessage{
			ChannelID: m.cfg.DiscordChannelID,
			Content:   transcriptAttachmentTitle(obs.recording.ID),
			Filename:  fmt.Sprintf("transcript-%s.txt", obs.recording.ID),
			FileBody:  body,
		})
		m.recordDelivery(obs, sinkDiscord, err)
	}

	payload := buildTranscriptWebhookPayload(meta, assignments, entries)
	m.recordDelivery(obs, sinkWebhook, m.webhook.SendTranscript(ctx, payload))
	obs.logger.Info().Int("entries", len(entries)).Str("reason", reason).Msg("recording finalized")
}

// recordingObserver ties one session's callbacks to the manager. Entries are
// stored and published in order by runDeliveries so slow sinks never hold up
// the transport's read loop.
type recordingObserver struct {
	manager    *Manager
	recording  *repository.Recording
	session    *Session
	logger     zerolog.Logger
	deliveries chan transcript.Entry
	delivered  chan struct{}

	mu     sync.Mutex
	closed bool
}

func (o *recordingObserver) runDeliveries() {
	defer close(o.delivered)
	for entry := range o.deliveries {
		o.manager.deliverEntry(o, entry)
	}
}

// closeDeliveries stops the queue and waits until every queued entry has
// been handed to the sinks.
func (o *recordingObserver) closeDeliveries() {
	o.mu.Lock()
	if !o.closed {
		o.closed = true
		close(o.deliveries)
	}
	o.mu.Unlock()
	<-o.delivered
}

func (o *recordingObserver) StateChanged(state State) {
	if l := o.manager.currentListener(); l != nil {
		l.StateChanged(state)
	}
}

func (o *recordingObserver) EntryAppended(entry transcript.Entry) {
	if l := o.manager.currentListener(); l != nil {
		l.EntryAppended(entry)
	}
	o.mu.Lock()
	if !o.closed {
		o.deliveries <- entry
		o.mu.Unlock()
		return
	}
	o.mu.Unlock()
	o.logger.Warn().Int("index", entry.Index).Msg("entry arrived after the delivery queue closed; storing it directly")
	o.manager.deliverEntry(o, entry)
}

func (o *recordingObserver) PartialReceived(label, text string) {
	if l := o.manager.currentListener(); l != nil {
		l.PartialReceived(label, text)
	}
}

func (o *recordingObserver) Failed(err error) {
	o.logger.Error().Err(err).Msg("recording failed")
	if l := o.manager.currentListener(); l != nil {
		l.Failed(failureMessage(err))
	}
}

func (o *recordingObserver) Closed(reason string) {
	o.manager.finalizing.Add(1)
	go func() {
		defer o.manager.finalizing.Done()
		o.closeDeliveries()
		o.manager.finalize(o, reason)
	}()
}
