/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/Seednode/buzzbox/internal/room"
	"github.com/lmittmann/tint"
)

func newLogger(cfg *Config, w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if cfg.verbose {
		level = slog.LevelDebug
	}

	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: logDate,
	}))
}

// statusOf maps a room error onto an HTTP status.
func statusOf(err error) int {
	switch {
	case errors.Is(err, room.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, room.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, room.ErrPreconditionFailed):
		return http.StatusConflict
	case errors.Is(err, room.ErrConcurrencyConflict):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// kindOf names the error class for clients.
func kindOf(err error) string {
	switch {
	case errors.Is(err, room.ErrValidation):
		return "validation_rejected"
	case errors.Is(err, room.ErrNotFound):
		return "not_found"
	case errors.Is(err, room.ErrPreconditionFailed):
		return "precondition_failed"
	case errors.Is(err, room.ErrConcurrencyConflict):
		return "concurrency_conflict"
	default:
		return "internal"
	}
}

func newPage(title, body string) string {
	var htmlBody strings.Builder

	htmlBody.WriteString(`<!DOCTYPE html><html lang="en"><head>`)
	htmlBody.WriteString(`<style>`)
	htmlBody.WriteString(`html,body,a{display:block;height:100%;width:100%;text-decoration:none;color:inherit;cursor:auto;}</style>`)
	htmlBody.WriteString(fmt.Sprintf("<title>%s</title></head>", title))
	htmlBody.WriteString(fmt.Sprintf("<body><a href=\"/\">%s</a></body></html>", body))

	return htmlBody.String()
}
