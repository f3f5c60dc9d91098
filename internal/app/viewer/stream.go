package viewer

import (
	"context"
	"encoding/json"

	"logview/internal/app/api"
	"logview/internal/app/buffer"
	"logview/internal/app/bus"
	"logview/internal/app/instances"
	"logview/internal/app/logstream"
	"logview/internal/app/progress"
)

// openStream starts a new stream for the current range and selection.
// Callers must have stopped the previous one.
func (v *Viewer) openStream(ctx context.Context) error {
	v.mu.Lock()
	r := v.dateRange
	selection := v.selection
	v.mu.Unlock()

	selected := make([]*instances.Instance, 0, len(selection))

	for _, id := range selection {
		inst, err := v.manager.GetOrFetchInstance(ctx, id)
		if err != nil {
			v.log.Warn().Err(err).Str("instance", id).Msg("Cannot resolve selected instance, streaming the full range")

			selected = nil

			break
		}

		selected = append(selected, inst)
	}

	window := narrow(r, selected)

	v.mu.Lock()
	v.generation++
	gen := v.generation

	buf, err := buffer.New(v.opts.Buffer, func(batch []logstream.Entry) {
		v.appendBatch(gen, batch)
	})
	if err != nil {
		v.mu.Unlock()
		return err
	}

	s := logstream.New(v.api, logstream.Params{
		OwnerID:       v.target.OwnerID,
		ApplicationID: v.target.ApplicationID,
		Since:         window.Since,
		Until:         window.Until,
		InstanceIDs:   selection,
		Limit:         v.opts.Progress.Limit,
	}, v.opts.Stream, v.log)

	done := make(chan struct{})

	v.stream = s
	v.buffer = buf
	v.runDone = done
	v.mu.Unlock()

	v.log.Info().Str("range", window.String()).Strs("instances", selection).Msg("Opening log stream")

	v.progress.Init(window.Since, window.Until)
	v.progress.Start()
	v.transition(eventConnect)

	go func() {
		defer close(done)

		reason, err := s.Run(v.ctx, v.handler(gen, buf))
		v.finished(gen, reason, err)
	}()

	return nil
}

// stopStream closes the current stream and waits for it; flush delivers what is still buffered
func (v *Viewer) stopStream(flush bool) {
	v.mu.Lock()
	s, buf, done := v.stream, v.buffer, v.runDone
	v.mu.Unlock()

	if s == nil {
		return
	}

	if flush {
		buf.Flush()
	}

	v.mu.Lock()
	v.generation++
	v.stream = nil
	v.buffer = nil
	v.runDone = nil
	v.mu.Unlock()

	s.Close()
	<-done

	buf.Clear()
}

func (v *Viewer) current(gen uint64) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	return gen == v.generation
}

func (v *Viewer) handler(gen uint64, buf *buffer.Buffer[logstream.Entry]) logstream.Handler {
	return logstream.HandlerFuncs{
		Open: func() {
			if !v.current(gen) {
				return
			}

			if v.fsm.Current() == LogStreamPaused {
				return
			}

			if v.progress.State() == progress.Paused {
				v.progress.Start()
			}

			v.transition(eventOpen)
		},
		Log: func(entry logstream.Entry) {
			if !v.current(gen) {
				return
			}

			buf.Add(v.annotate(entry))
		},
		Error: func(err error) {
			if !v.current(gen) {
				return
			}

			v.log.Warn().Err(err).Msg("Log stream interrupted, reconnecting")
			v.pauseProgress()
		},
	}
}

// annotate adds the instance name and id to an entry; unknown instances fall back to their id
func (v *Viewer) annotate(entry logstream.Entry) logstream.Entry {
	if entry.InstanceID == "" {
		return entry
	}

	label := entry.InstanceID

	inst, err := v.manager.GetOrFetchInstance(v.ctx, entry.InstanceID)
	if err != nil {
		v.log.Warn().Err(err).Str("instance", entry.InstanceID).Msg("Cannot resolve instance of log entry")
	} else {
		label = inst.Label()
	}

	return entry.WithMetadata(
		logstream.Metadata{Name: MetaInstance, Value: label},
		logstream.Metadata{Name: MetaInstanceID, Value: entry.InstanceID},
	)
}

// appendBatch forwards a flushed batch unless its stream was superseded
func (v *Viewer) appendBatch(gen uint64, batch []logstream.Entry) {
	v.mu.Lock()
	if gen != v.generation {
		v.mu.Unlock()
		return
	}

	onAppend := v.onAppend
	v.mu.Unlock()

	if onAppend != nil {
		onAppend(batch)
	}

	v.bus.Publish(bus.Message{Type: bus.EventLogsAppended, Data: bus.LogsAppended{Entries: batch}})
	v.progress.Progress(batch)
}

// finished translates the outcome of a stream into the published state
func (v *Viewer) finished(gen uint64, reason json.RawMessage, err error) {
	v.mu.Lock()
	if gen != v.generation || v.stream == nil {
		v.mu.Unlock()
		return
	}

	buf := v.buffer
	v.mu.Unlock()

	buf.Flush()

	switch {
	case err == nil:
		v.log.Info().RawJSON("reason", reason).Msg("Log stream ended")
		v.progress.Complete()
		v.transition(eventEnd)
	case api.IsNotFound(err):
		v.log.Info().Msg("No logs for this range")
		v.progress.Complete()
		v.transition(eventEnd)
	default:
		v.mu.Lock()
		v.lastErr = err
		v.mu.Unlock()

		v.log.Error().Err(err).Msg("Log stream failed")
		v.reporter.Report(err, map[string]string{
			"component":   "logs",
			"owner":       v.target.OwnerID,
			"application": v.target.ApplicationID,
		})

		v.pauseProgress()
		v.transition(eventFail)
	}
}

// watermarkReached pauses the stream until Resume or Stop decides how to go on
func (v *Viewer) watermarkReached() {
	v.mu.Lock()
	s := v.stream
	if s == nil || v.overflow {
		v.mu.Unlock()
		return
	}

	v.overflow = true
	v.mu.Unlock()

	v.log.Warn().Int("limit", v.opts.Progress.Limit).Msg("Overflow watermark reached, pausing log stream")

	s.Pause()
	v.pauseProgress()

	if !v.transition(eventPause) {
		v.publishState("")
	}
}
