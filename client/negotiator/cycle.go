package negotiator

import (
	"context"
	"strings"
	"time"

	"github.com/juju/errors"
	"github.com/peer-calls/mediaclient/client/logger"
	"github.com/peer-calls/mediaclient/client/media"
	"github.com/peer-calls/mediaclient/client/message"
	"github.com/peer-calls/mediaclient/client/sdpfix"
	"github.com/peer-calls/mediaclient/client/sdpinfo"
	"github.com/peer-calls/mediaclient/client/session"
)

// cycle runs a single offer/answer cycle. On failure the transceivers it
// processed are pending again.
func (n *Negotiator) cycle(ctx context.Context) error {
	start := time.Now()

	prometheusNegotiationCycles.Inc()

	n.mu.Lock()
	n.processAdding()
	ended := n.processRemoving()
	processing := n.session.TakePending()
	n.mu.Unlock()

	for _, event := range ended {
		n.trackEnded(event)
	}

	n.log.Debug("Cycle start", logger.Ctx{
		"processing": len(processing),
	})

	if err := n.negotiate(ctx, processing); err != nil {
		prometheusNegotiationFailures.Inc()

		n.mu.Lock()

		for _, t := range processing {
			n.session.MarkPending(t)
		}

		n.mu.Unlock()

		n.log.Error("Cycle failed", errors.Trace(err), nil)

		return &FailedError{err: err}
	}

	n.mu.Lock()

	for _, t := range processing {
		if !n.session.IsPending(t) {
			t.Pending = false
		}
	}

	n.mu.Unlock()

	prometheusNegotiationDuration.Observe(time.Since(start).Seconds())

	n.log.Debug("Cycle done", nil)

	return nil
}

func (n *Negotiator) trackEnded(event TrackEvent) {
	n.log.Info("Track ended", logger.Ctx{
		"stream_id": event.StreamID,
		"track_id":  event.TrackID,
	})

	if n.params.OnTrackEnded != nil {
		n.params.OnTrackEnded(event)
	}
}

// processAdding assigns a receiving transceiver to every queued remote
// track, reusing an idle transceiver of the same kind when there is one.
func (n *Negotiator) processAdding() {
	engine := n.params.Engine

	for _, req := range n.session.DrainAdding() {
		kind := media.Kind(req.Track.Media)

		var t *session.Transceiver

		for _, candidate := range n.session.Sync(engine.Transceivers()) {
			mt := candidate.Media

			if mt.Kind() == kind && mt.Direction() == media.DirectionInactive && !candidate.Pending && !mt.Stopped() {
				if err := mt.SetDirection(media.DirectionRecvOnly); err != nil {
					n.log.Warn("Reuse transceiver", logger.Ctx{
						"error": err.Error(),
						"mid":   mt.Mid(),
					})

					continue
				}

				t = candidate

				break
			}
		}

		if t == nil {
			mt, err := engine.AddTransceiverFromKind(kind, media.TransceiverInit{
				Direction: media.DirectionRecvOnly,
			})
			if err != nil {
				n.log.Error("Dropping added track", errors.Trace(err), logger.Ctx{
					"stream_id": req.StreamID,
					"track_id":  req.Track.ID,
				})

				continue
			}

			t = n.session.Transceiver(mt)
		}

		info := req.Track
		// The server's media id refers to its own description.
		info.MediaID = ""

		track := n.session.AddTrack(req.StreamID, info)

		t.StreamID = req.StreamID
		t.TrackID = track.ID
		t.Track = track

		n.session.MarkPending(t)
	}
}

// processRemoving disables the transceivers of queued remote track
// removals. A removal whose track has not been negotiated yet is kept for
// a later cycle.
func (n *Negotiator) processRemoving() []TrackEvent {
	var (
		ended   []TrackEvent
		requeue []session.RemoveRequest
	)

	records := n.session.Sync(n.params.Engine.Transceivers())

	for _, req := range n.session.DrainRemoving() {
		log := n.log.WithCtx(logger.Ctx{
			"stream_id": req.StreamID,
			"track_id":  req.TrackID,
		})

		stream, ok := n.session.Stream(req.StreamID)
		if !ok {
			log.Warn("Dropping removal of unknown stream", nil)

			continue
		}

		track, ok := stream.Track(req.TrackID)
		if !ok {
			log.Warn("Dropping removal of unknown track", nil)

			continue
		}

		mid := track.MediaID
		if mid == "" {
			requeue = append(requeue, req)

			continue
		}

		var (
			t     *session.Transceiver
			found bool
		)

		for _, candidate := range records {
			if candidate.Media.Mid() != mid {
				continue
			}

			found = true

			if !candidate.Pending {
				t = candidate

				break
			}
		}

		if t == nil {
			if found {
				requeue = append(requeue, req)
			} else {
				log.Warn("Dropping removal without transceiver", nil)
			}

			continue
		}

		if err := t.Media.SetDirection(media.DirectionInactive); err != nil {
			log.Error("Disable transceiver", errors.Trace(err), nil)
		}

		ended = append(ended, TrackEvent{
			Transceiver: t.Media,
			StreamID:    stream.ID,
			TrackID:     track.ID,
			Track:       *track,
		})

		n.session.RemoveTrack(req.StreamID, req.TrackID)
		t.ClearReceive()
	}

	for _, req := range requeue {
		n.session.EnqueueRemove(req)
	}

	return ended
}

type trackMessage struct {
	name string
	data interface{}
}

// negotiate creates or reuses the local offer, answers it on behalf of the
// server and applies the answer.
func (n *Negotiator) negotiate(ctx context.Context, processing []*session.Transceiver) error {
	engine := n.params.Engine

	local, simulcast03, err := n.localDescription(ctx)
	if err != nil {
		return errors.Trace(err)
	}

	remote, err := local.Answer(n.params.Remote)
	if err != nil {
		return errors.Annotate(err, "answer")
	}

	answer, messages, err := n.prepareAnswer(local, remote, processing)
	if err != nil {
		return errors.Trace(err)
	}

	if simulcast03 {
		answer = sdpfix.RestoreSimulcast03(answer)
	}

	n.sendTrackMessages(ctx, messages)

	if err := engine.SetRemoteDescription(ctx, answer); err != nil {
		return errors.Annotate(err, "set remote description")
	}

	n.mu.Lock()
	n.session.Local = local
	n.session.Remote = remote
	n.offer = nil
	n.offerSimulcast03 = false
	n.mu.Unlock()

	return nil
}

// prepareAnswer restricts the codecs of the answer, updates the processed
// transceivers and announces the negotiated remote streams in the answer.
// It returns the answer text and the track events to send.
func (n *Negotiator) prepareAnswer(
	local *sdpinfo.Description,
	remote *sdpinfo.Description,
	processing []*session.Transceiver,
) (string, []trackMessage, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	records := n.session.Sync(n.params.Engine.Transceivers())

	if err := n.answerCodecs(local, remote, records); err != nil {
		return "", nil, errors.Trace(err)
	}

	var messages []trackMessage

	for _, t := range processing {
		mid := t.Media.Mid()

		if _, ok := local.Media(mid); !ok {
			// Created after the outstanding offer, left for the next cycle.
			n.session.MarkPending(t)

			continue
		}

		switch t.Media.Direction() {
		case media.DirectionSendOnly:
			track, _, ok := local.TrackByMediaID(mid)
			if !ok {
				n.log.Warn("Sent track not found in local description", logger.Ctx{
					"mid": mid,
				})

				continue
			}

			if t.SendTrack != nil && t.SendTrack.ID == track.ID {
				continue
			}

			messages = append(messages, trackMessage{message.EventAddedTrack, message.AddedTrack{
				StreamID: t.SendStreamID,
				Track:    track,
			}})

			t.SendTrack = &track
		case media.DirectionRecvOnly:
			if t.Track != nil {
				t.Track.MediaID = mid
			}
		case media.DirectionInactive:
			if t.SendTrack != nil {
				messages = append(messages, trackMessage{message.EventRemovedTrack, message.RemovedTrack{
					StreamID: t.SendStreamID,
					TrackID:  t.SendTrack.ID,
				}})

				t.SendStreamID = ""
				t.SendTrack = nil
				t.Simulcast = nil
			}
		}
	}

	for _, stream := range n.session.Streams() {
		if err := remote.AddStream(stream.NegotiatedInfo()); err != nil {
			return "", nil, errors.Annotate(err, "add stream to answer")
		}
	}

	answer, err := remote.Marshal()
	if err != nil {
		return "", nil, errors.Trace(err)
	}

	if n.forceSDPMunging {
		answer = sdpfix.StripSimulcast(answer)
	}

	return answer, messages, nil
}

func (n *Negotiator) sendTrackMessages(ctx context.Context, messages []trackMessage) {
	if n.params.Events == nil {
		return
	}

	for _, m := range messages {
		if err := n.params.Events.Event(ctx, m.name, m.data); err != nil {
			prometheusEventSendFailures.Inc()

			n.log.Error("Send track event", errors.Trace(err), logger.Ctx{
				"name": m.name,
			})
		}
	}
}

// localDescription returns the parsed local offer, creating and applying a
// new one unless an offer is already waiting for its answer. simulcast03
// reports whether the offer uses the legacy simulcast syntax.
func (n *Negotiator) localDescription(ctx context.Context) (local *sdpinfo.Description, simulcast03 bool, err error) {
	engine := n.params.Engine

	if engine.HasLocalOffer() {
		n.mu.Lock()
		local, simulcast03 = n.offer, n.offerSimulcast03
		n.mu.Unlock()

		if local != nil {
			return local, simulcast03, nil
		}

		text, ok := sdpfix.NormalizeSimulcast03(engine.LocalDescription())

		if local, err = sdpinfo.Parse(text); err != nil {
			return nil, false, errors.Annotate(err, "parse pending local description")
		}

		return local, ok, nil
	}

	offer, err := engine.CreateOffer(ctx)
	if err != nil {
		return nil, false, errors.Annotate(err, "create offer")
	}

	var synthesized []*sdpfix.Simulcast

	fixed := offer
	apply := offer

	if !n.params.StrictW3C {
		n.mu.Lock()

		records := n.session.Sync(engine.Transceivers())
		fixes := make([]sdpfix.Section, 0, len(records))

		for _, t := range records {
			fixes = append(fixes, sdpfix.Section{
				Simulcast: t.Simulcast,
				Codecs:    t.Codecs,
			})
		}

		forceSDPMunging := n.forceSDPMunging

		fixed, synthesized, err = sdpfix.FixLocal(offer, fixes, n.params.SSRCGenerator)

		n.mu.Unlock()

		if err != nil {
			return nil, false, errors.Annotate(err, "fix local description")
		}

		apply = fixed

		if forceSDPMunging {
			apply = sdpfix.StripSimulcast(fixed)
		}
	}

	if err := engine.SetLocalDescription(ctx, apply); err != nil {
		return nil, false, errors.Annotate(err, "set local description")
	}

	n.mu.Lock()

	for _, s := range synthesized {
		s.Applied = true
	}

	n.mu.Unlock()

	parse := fixed

	if !n.params.StrictW3C {
		if normalized, ok := sdpfix.NormalizeSimulcast03(apply); ok {
			simulcast03 = true
			parse = normalized
		}
	}

	local, err = sdpinfo.Parse(parse)
	if err != nil {
		return nil, false, errors.Annotate(err, "parse local description")
	}

	n.mu.Lock()
	n.offer = local
	n.offerSimulcast03 = simulcast03
	n.mu.Unlock()

	return local, simulcast03, nil
}

// answerCodecs replaces the answered media of transceivers with a codec
// allow-list by one accepting only the allowed codecs the server supports.
// When none of them is supported the default answer is kept.
func (n *Negotiator) answerCodecs(local, remote *sdpinfo.Description, records []*session.Transceiver) error {
	for _, t := range records {
		mid := t.Media.Mid()
		if t.Codecs == nil || mid == "" {
			continue
		}

		md, ok := local.Media(mid)
		if !ok {
			continue
		}

		capability, ok := n.params.Remote.Capabilities[md.MediaName.Media]
		if !ok {
			continue
		}

		filtered := capability
		filtered.Codecs = nil

		for _, codec := range t.Codecs {
			for _, supported := range capability.Codecs {
				if strings.EqualFold(codec, sdpinfo.CodecName(supported)) {
					filtered.Codecs = append(filtered.Codecs, supported)
				}
			}
		}

		answer, err := local.AnswerMedia(n.params.Remote, mid, filtered)
		if errors.Cause(err) == sdpinfo.ErrCapabilityMismatch {
			n.log.Warn("No allowed codec supported", logger.Ctx{
				"mid":    mid,
				"codecs": strings.Join(t.Codecs, ","),
			})

			continue
		}

		if err != nil {
			return errors.Annotatef(err, "answer media: %s", mid)
		}

		if err := remote.ReplaceMedia(answer); err != nil {
			return errors.Trace(err)
		}
	}

	return nil
}
