// Command auditwatch tails the processed-call topics and logs each event.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"call-sheets-webhook/internal/models"
)

func main() {
	brokers := flag.String("brokers", "localhost:9092", "Kafka brokers (comma-separated)")
	topicRecorded := flag.String("topic-recorded", "call.transcript.recorded", "Recorded calls topic")
	topicDropped := flag.String("topic-dropped", "call.transcript.dropped", "Dropped calls topic")
	since := flag.Duration("since", time.Hour, "Replay events newer than this")
	flag.Parse()

	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		With().Timestamp().Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info().
		Str("brokers", *brokers).
		Strs("topics", []string{*topicRecorded, *topicDropped}).
		Msg("Audit watch starting")

	var wg sync.WaitGroup
	for _, topic := range []string{*topicRecorded, *topicDropped} {
		wg.Add(1)
		go func(topic string) {
			defer wg.Done()
			consume(ctx, strings.Split(*brokers, ","), topic, *since)
		}(topic)
	}
	wg.Wait()
}

func consume(ctx context.Context, brokers []string, topic string, since time.Duration) {
	// Partition reader without a consumer group
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:   brokers,
		Topic:     topic,
		Partition: 0,
		MinBytes:  1,
		MaxBytes:  10e6,
	})
	defer reader.Close()

	if err := reader.SetOffsetAt(ctx, time.Now().Add(-since)); err != nil {
		log.Warn().Err(err).Str("topic", topic).Msg("Failed to seek, reading from current offset")
	}

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error().Err(err).Str("topic", topic).Msg("Kafka read error")
			time.Sleep(time.Second)
			continue
		}

		ev, err := decode(msg.Value)
		if err != nil {
			log.Warn().Err(err).Str("topic", topic).Int64("offset", msg.Offset).Msg("Skipping undecodable event")
			continue
		}
		logEvent(log.Logger, topic, ev)
	}
}

func decode(value []byte) (models.CallProcessed, error) {
	var ev models.CallProcessed
	err := json.Unmarshal(value, &ev)
	return ev, err
}

// logEvent writes one line per event; dropped calls are logged at warn.
func logEvent(logger zerolog.Logger, topic string, ev models.CallProcessed) {
	e := logger.Info()
	if ev.Outcome != "written" {
		e = logger.Warn().Str("stage", ev.Stage).Str("error", ev.Error)
	}
	e.Str("topic", topic).
		Str("eventId", ev.EventID).
		Str("conversationId", ev.ConversationID).
		Str("outcome", ev.Outcome).
		Int("turns", ev.TranscriptTurns).
		Int64("callDurationSecs", ev.CallDurationSecs).
		Str("summary", truncate(ev.Summary, 60)).
		Msg(ev.EventType)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
