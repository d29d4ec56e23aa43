package editor

import (
	"log/slog"
	"time"
)

const (
	DefaultDebounce         = 500 * time.Millisecond
	DefaultAckTimeout       = 5 * time.Second
	DefaultImageLoadDelay   = 300 * time.Millisecond
	DefaultPlaceholderAsset = "/assets/placeholder.svg"
	DefaultAttachmentBase   = "/api/attachments/"
)

// Option configures a Manager.
type Option func(*options)

type options struct {
	log              *slog.Logger
	debounce         time.Duration
	ackTimeout       time.Duration
	imageLoadDelay   time.Duration
	placeholderAsset string
	attachmentBase   string
	placeholder      string
	theme            string
	sanitize         func(string) string
	now              func() time.Time
}

func defaultOptions() options {
	return options{
		log:              slog.Default(),
		debounce:         DefaultDebounce,
		ackTimeout:       DefaultAckTimeout,
		imageLoadDelay:   DefaultImageLoadDelay,
		placeholderAsset: DefaultPlaceholderAsset,
		attachmentBase:   DefaultAttachmentBase,
		now:              time.Now,
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// WithDebounce sets the quiet period before an edit is saved.
func WithDebounce(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.debounce = d
		}
	}
}

// WithAckTimeout sets the default SendAndAwait timeout.
func WithAckTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.ackTimeout = d
		}
	}
}

// WithImageLoadDelay sets how long after a load image downloads start.
func WithImageLoadDelay(d time.Duration) Option {
	return func(o *options) {
		if d >= 0 {
			o.imageLoadDelay = d
		}
	}
}

// WithPlaceholderAsset sets the image shown for attachments not downloaded yet.
func WithPlaceholderAsset(src string) Option {
	return func(o *options) {
		if src != "" {
			o.placeholderAsset = src
		}
	}
}

// WithAttachmentBase sets the URL prefix downloaded attachments are served under.
func WithAttachmentBase(base string) Option {
	return func(o *options) {
		if base != "" {
			o.attachmentBase = base
		}
	}
}

// WithPlaceholder sets the empty-document placeholder text.
func WithPlaceholder(text string) Option {
	return func(o *options) { o.placeholder = text }
}

// WithTheme sets the theme pushed when the editor loads.
func WithTheme(theme string) Option {
	return func(o *options) { o.theme = theme }
}

// WithSanitizer filters content before it is saved.
func WithSanitizer(fn func(string) string) Option {
	return func(o *options) { o.sanitize = fn }
}
