// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package notify carries the transient, non-blocking notices the agent
// shows the shop assistant: a scan request arrived, the scan went
// through, the camera could not be opened. Notices never interrupt
// work; a failed operation reports through here and moves on.
//
// Messages are looked up by [Key] in a per-locale catalog. Arabic is
// the shop floor default; English is the fallback for any key a locale
// does not translate.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Level is the severity shown with a notice.
type Level int

const (
	Info Level = iota
	Success
	Error
)

func (l Level) String() string {
	switch l {
	case Success:
		return "success"
	case Error:
		return "error"
	default:
		return "info"
	}
}

// Key identifies a message in the catalog.
type Key string

const (
	ScanRequestReceived Key = "scan_request_received"
	PendingScanFound    Key = "pending_scan_found"
	ScanSucceeded       Key = "scan_succeeded"
	ScanResultFailed    Key = "scan_result_failed"
	CameraUnavailable   Key = "camera_unavailable"
	ScanCancelled       Key = "scan_cancelled"
	SettingsSaved       Key = "settings_saved"
	SettingsIncomplete  Key = "settings_incomplete"
	ConnectionOK        Key = "connection_ok"
	ConnectionFailed    Key = "connection_failed"
	CatalogUpdated      Key = "catalog_updated"
	CatalogFailed       Key = "catalog_failed"
)

// Notice is one message for the user.
type Notice struct {
	Level Level
	Key   Key
	// Args fill the message's format verbs, if any.
	Args []any
}

// Notifier shows notices. Implementations must not block.
type Notifier interface {
	Notify(notice Notice)
}

var catalogs = map[string]map[Key]string{
	"ar": {
		ScanRequestReceived: "تم استلام طلب مسح من النظام",
		PendingScanFound:    "تم العثور على طلب مسح معلق",
		ScanSucceeded:       "تم المسح بنجاح",
		ScanResultFailed:    "فشل إرسال نتيجة المسح",
		CameraUnavailable:   "تعذر فتح الكاميرا",
		ScanCancelled:       "تم إلغاء المسح",
		SettingsSaved:       "تم حفظ الإعدادات",
		SettingsIncomplete:  "من فضلك أدخل إعدادات المزامنة كاملة",
		ConnectionOK:        "اتصال قاعدة البيانات ناجح",
		ConnectionFailed:    "فشل اختبار الاتصال",
		CatalogUpdated:      "تم تحديث %s",
		CatalogFailed:       "فشل تحميل %s",
	},
	"en": {
		ScanRequestReceived: "Scan request received",
		PendingScanFound:    "Found a pending scan request",
		ScanSucceeded:       "Scan sent",
		ScanResultFailed:    "Could not send the scan result",
		CameraUnavailable:   "Could not open the camera",
		ScanCancelled:       "Scan cancelled",
		SettingsSaved:       "Settings saved",
		SettingsIncomplete:  "Please complete the sync settings",
		ConnectionOK:        "Database connection OK",
		ConnectionFailed:    "Connection test failed",
		CatalogUpdated:      "Updated %s",
		CatalogFailed:       "Could not load %s",
	},
}

// Message renders a notice in locale, falling back to English and
// finally to the key itself.
func Message(locale string, notice Notice) string {
	format, ok := catalogs[locale][notice.Key]
	if !ok {
		format, ok = catalogs["en"][notice.Key]
	}
	if !ok {
		format = string(notice.Key)
	}
	if len(notice.Args) == 0 {
		return format
	}
	return fmt.Sprintf(format, notice.Args...)
}

// Logger renders notices through a structured logger. Error notices
// log at warn level: they are user-facing, and the operation that
// failed has already logged its own error.
type Logger struct {
	logger *slog.Logger
	locale string
}

// NewLogger returns a Logger rendering in locale.
func NewLogger(logger *slog.Logger, locale string) *Logger {
	return &Logger{logger: logger, locale: locale}
}

// Notify implements Notifier.
func (l *Logger) Notify(notice Notice) {
	level := slog.LevelInfo
	if notice.Level == Error {
		level = slog.LevelWarn
	}
	l.logger.Log(context.Background(), level, Message(l.locale, notice),
		"notice", string(notice.Key),
		"level", notice.Level.String(),
	)
}

// Recorder keeps every notice in memory. Tests use it to assert on
// what the user would have seen.
type Recorder struct {
	mu      sync.Mutex
	notices []Notice
}

// Notify implements Notifier.
func (r *Recorder) Notify(notice Notice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, notice)
}

// Notices returns a copy of everything recorded so far.
func (r *Recorder) Notices() []Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notice(nil), r.notices...)
}

// Has reports whether a notice with key was recorded.
func (r *Recorder) Has(key Key) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, notice := range r.notices {
		if notice.Key == key {
			return true
		}
	}
	return false
}
