/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package orchestrator

import (
	"encoding/json"

	"github.com/pion/webrtc/v4"

	"github.com/relaycall/callorc/events"
)

// controlFrame is the reserved data-channel control message (spec.md
// §4.4 "Data channel"): {type: "ec", data: {audio, video}}.
type controlFrame struct {
	Type string           `json:"type"`
	Data ExternalControls `json:"data"`
}

func (o *Orchestrator) installDataChannel(dc *webrtc.DataChannel) {
	o.dataChan = dc

	dc.OnOpen(func() {
		o.enqueue(func() {
			o.setMatched(true)
			o.sendControlFrame()
		})
	})
	dc.OnClose(func() {
		o.enqueue(func() { o.setMatched(false) })
	})
	dc.OnError(func(err error) {
		o.enqueue(func() {
			o.setMatched(false)
			o.events.Emit(events.Error, err)
		})
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		o.enqueue(func() { o.handleDataChannelMessage(msg) })
	})
}

func (o *Orchestrator) sendControlFrame() {
	if o.dataChan == nil || o.dataChan.ReadyState() != webrtc.DataChannelStateOpen {
		return
	}
	frame := controlFrame{
		Type: "ec",
		Data: ExternalControls{Audio: o.Audio(), Video: o.Video()},
	}
	payload, err := json.Marshal(frame)
	if err != nil {
		o.logf("orchestrator: marshal control frame: %v", err)
		return
	}
	if err := o.dataChan.Send(payload); err != nil {
		o.logf("orchestrator: send control frame: %v", err)
	}
}

func (o *Orchestrator) handleDataChannelMessage(msg webrtc.DataChannelMessage) {
	var envelope struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(msg.Data, &envelope); err != nil {
		o.logf("orchestrator: data channel message parse failed: %v", err)
		return
	}

	if envelope.Type == "ec" {
		var ec ExternalControls
		if err := json.Unmarshal(envelope.Data, &ec); err != nil {
			o.logf("orchestrator: external-controls payload parse failed: %v", err)
			return
		}
		o.setExternalControls(ec)
		return
	}

	var payload any
	if err := json.Unmarshal(msg.Data, &payload); err != nil {
		o.logf("orchestrator: message payload parse failed: %v", err)
		return
	}
	o.events.Emit(events.Message, payload)
}
