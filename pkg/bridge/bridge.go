// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package bridge forwards link traffic between a tasmota.Host and an MQTT broker
// using Tasmota's topic layout.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/Thermoquad/tasmolink/pkg/tasmota"
)

// Topics names the MQTT topics for one device.
type Topics struct {
	Device string
}

// ClientSend is the command topic forwarded to the module.
func (t Topics) ClientSend() string {
	return "cmnd/" + t.Device + "/ClientSend"
}

// Sensor receives PUBLISH_TELE payloads.
func (t Topics) Sensor() string {
	return "tele/" + t.Device + "/SENSOR"
}

// State receives FUNC_JSON payloads.
func (t Topics) State() string {
	return "tele/" + t.Device + "/STATE"
}

// Execute receives EXECUTE_CMND strings.
func (t Topics) Execute() string {
	return "stat/" + t.Device + "/EXECUTE"
}

// Features receives the retained feature report.
func (t Topics) Features() string {
	return "tele/" + t.Device + "/FEATURES"
}

// FeatureReport is the payload published on the features topic.
type FeatureReport struct {
	Features []string `json:"Features"`
	Mask     uint8    `json:"Mask"`
	Version  int      `json:"Version"`
}

// Bridge connects a Host to a Broker.
type Bridge struct {
	host   *tasmota.Host
	broker Broker
	topics Topics
	log    zerolog.Logger
}

// New creates a bridge. The host's handlers are replaced when Run starts.
func New(host *tasmota.Host, broker Broker, topics Topics, logger zerolog.Logger) *Bridge {
	return &Bridge{
		host:   host,
		broker: broker,
		topics: topics,
		log:    logger.With().Str("device", topics.Device).Logger(),
	}
}

// Run subscribes to the command topic and drives the host until ctx is done.
func (b *Bridge) Run(ctx context.Context) error {
	b.host.OnTelemetry = func(s string) { b.publish(b.topics.Sensor(), []byte(s), false) }
	b.host.OnJSON = func(s string) { b.publish(b.topics.State(), []byte(s), false) }
	b.host.OnExecute = func(s string) { b.publish(b.topics.Execute(), []byte(s), false) }
	b.host.OnFeatures = func(f tasmota.Features) {
		payload, err := json.Marshal(NewFeatureReport(f))
		if err != nil {
			b.log.Error().Err(err).Msg("failed to encode feature report")
			return
		}
		b.publish(b.topics.Features(), payload, true)
	}
	b.host.OnError = func(err error) {
		b.log.Debug().Err(err).Msg("frame dropped")
	}

	if err := b.broker.Subscribe(b.topics.ClientSend(), b.onClientSend); err != nil {
		return fmt.Errorf("failed to subscribe %s: %w", b.topics.ClientSend(), err)
	}
	b.log.Info().Str("topic", b.topics.ClientSend()).Msg("bridge running")
	return b.host.Run(ctx)
}

func (b *Bridge) onClientSend(topic string, payload []byte) {
	text := strings.TrimSpace(string(payload))
	if err := b.host.ClientSend(text); err != nil {
		b.log.Warn().Err(err).Str("topic", topic).Msg("failed to forward command")
		return
	}
	b.log.Debug().Str("text", text).Msg("forwarded command")
}

func (b *Bridge) publish(topic string, payload []byte, retain bool) {
	if err := b.broker.Publish(topic, payload, retain); err != nil {
		b.log.Warn().Err(err).Str("topic", topic).Msg("publish failed")
	}
}

// NewFeatureReport describes a feature mask.
func NewFeatureReport(f tasmota.Features) FeatureReport {
	report := FeatureReport{
		Features: []string{},
		Mask:     uint8(f),
		Version:  tasmota.LibVersion,
	}
	for _, k := range tasmota.Kinds {
		if f.Has(k) {
			report.Features = append(report.Features, k.String())
		}
	}
	return report
}
