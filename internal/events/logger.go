// AuthShield - Continuous Authentication Risk Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authshield

package events

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/rs/zerolog"

	"github.com/tomtom215/authshield/internal/logging"
)

// watermillLogger adapts the global zerolog logger to Watermill's
// LoggerAdapter so the event pipeline logs in the same format as
// everything else.
type watermillLogger struct {
	fields watermill.LogFields
}

// NewWatermillLogger returns a watermill.LoggerAdapter backed by the
// global logger.
func NewWatermillLogger() watermill.LoggerAdapter {
	return &watermillLogger{}
}

func (l *watermillLogger) Error(msg string, err error, fields watermill.LogFields) {
	ev := logging.Error().Err(err)
	addFields(ev, l.fields, fields)
	ev.Msg(msg)
}

func (l *watermillLogger) Info(msg string, fields watermill.LogFields) {
	ev := logging.Info()
	addFields(ev, l.fields, fields)
	ev.Msg(msg)
}

func (l *watermillLogger) Debug(msg string, fields watermill.LogFields) {
	ev := logging.Debug()
	addFields(ev, l.fields, fields)
	ev.Msg(msg)
}

func (l *watermillLogger) Trace(msg string, fields watermill.LogFields) {
	ev := logging.Debug()
	addFields(ev, l.fields, fields)
	ev.Msg(msg)
}

func (l *watermillLogger) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &watermillLogger{fields: l.fields.Add(fields)}
}

func addFields(ev *zerolog.Event, base, extra watermill.LogFields) {
	for k, v := range base {
		ev.Interface(k, v)
	}
	for k, v := range extra {
		ev.Interface(k, v)
	}
}
