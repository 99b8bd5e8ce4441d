package main

import (
	"context"
	"fmt"

	"node.town/asrbench/awslive"
	"node.town/asrbench/config"
	"node.town/asrbench/deepgram"
	"node.town/asrbench/gemini"
	"node.town/asrbench/sigv4"
	"node.town/asrbench/speechmatics"
	"node.town/asrbench/stream"
	"node.town/asrbench/stt"
	"node.town/asrbench/transcript"
)

// hooks are the optional live callbacks of a streaming session.
type hooks struct {
	observe func(transcript.Event)
	onState func(stream.State)
}

func newStreaming(system string, s config.Settings, h hooks) (stt.StreamingBackend, bool, error) {
	creds := s.Credentials
	switch system {
	case awslive.Name:
		c, err := awslive.New(awslive.Config{
			Credentials: sigv4.Credentials{
				AccessKey: creds.AmazonAccessKeyID,
				SecretKey: creds.AmazonSecretAccessKey,
			},
			Region:       creds.AmazonRegion,
			LanguageCode: s.SpeechLanguage,
			Logger:       logger.With().WithPrefix("aws"),
			Observer:     h.observe,
			OnState:      h.onState,
		})
		if err != nil {
			return nil, true, err
		}
		return c, true, nil
	case speechmatics.LiveName:
		client := speechmatics.NewClient(creds.SpeechmaticsToken, logger.With().WithPrefix("smx"))
		return &speechmatics.Streamer{
			Client:   client,
			Language: language2(s.SpeechLanguage),
			Observer: h.observe,
			OnState:  h.onState,
		}, true, nil
	case deepgram.Name:
		c := deepgram.NewClient(creds.DeepgramAPIKey, logger.With().WithPrefix("hear"))
		c.Language = s.SpeechLanguage
		c.Observer = h.observe
		c.OnState = h.onState
		return c, true, nil
	}
	return nil, false, nil
}

func newBatch(ctx context.Context, system string, s config.Settings) (stt.BatchBackend, func(), bool, error) {
	creds := s.Credentials
	switch system {
	case speechmatics.Name:
		return speechmatics.NewClient(creds.SpeechmaticsToken, logger.With().WithPrefix("smx")), func() {}, true, nil
	case gemini.Name:
		t, err := gemini.New(ctx, creds.GeminiAPIKey, creds.GeminiModel, logger.With().WithPrefix("gem"))
		if err != nil {
			return nil, nil, true, err
		}
		return t, func() { t.Close() }, true, nil
	}
	return nil, nil, false, nil
}

// language2 is the two letter language code Speechmatics expects.
func language2(code string) string {
	if len(code) > 2 && code[2] == '-' {
		return code[:2]
	}
	return code
}

// buildRegistry constructs a backend for every configured system. The
// returned func releases them.
func buildRegistry(ctx context.Context, s config.Settings, h hooks) (*stt.Registry, func(), error) {
	registry := stt.NewRegistry()
	var closers []func()
	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}

	for _, system := range s.ASRSystems {
		sb, ok, err := newStreaming(system, s, h)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("%s: %w", system, err)
		}
		if ok {
			registry.AddStreaming(sb)
			continue
		}

		bb, closer, ok, err := newBatch(ctx, system, s)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("%s: %w", system, err)
		}
		if !ok {
			closeAll()
			return nil, nil, fmt.Errorf("%w: %s", stt.ErrUnknownSystem, system)
		}
		registry.AddBatch(bb)
		closers = append(closers, closer)
	}
	return registry, closeAll, nil
}

func knownSystems() []string {
	return []string{awslive.Name, speechmatics.LiveName, deepgram.Name, speechmatics.Name, gemini.Name}
}
