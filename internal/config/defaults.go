package config

const (
	defaultDataDir              = "~/.local/share/perch"
	defaultFFmpegBinary         = "ffmpeg"
	defaultFrameRate            = 2.0
	defaultConnectBaseDelay     = 2
	defaultConnectMaxDelay      = 60
	defaultConnectMaxAttempts   = 10
	defaultReadFailureThreshold = 10
	defaultConfidenceThreshold  = 0.25
	defaultBirdClassID          = 14
	defaultMinAreaRatio         = 0.002
	defaultDetectorTimeout      = 10
	defaultDetectionIntervalMS  = 500
	defaultAbsenceGracePeriod   = 5
	defaultVisitCooldown        = 15
	defaultMaxCapturesPerVisit  = 5
	defaultCaptureInterval      = 3
	defaultVisionBaseURL        = "https://api.openai.com/v1/chat/completions"
	defaultVisionModel          = "gpt-4o-mini"
	defaultVisionMaxTokens      = 300
	defaultVisionTimeout        = 30
	defaultVisionMaxRetries     = 3
	defaultVisionRetryBaseDelay = 2
	defaultVisionRetryMaxDelay  = 30
	defaultAnalysisWorkers      = 1
	defaultQueueWatermark       = 25
	defaultDrainTimeout         = 120
	defaultNotifyTimeout        = 10
	defaultLogFormat            = ""
	defaultLogLevel             = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
		},
		Source: Source{
			FFmpegBinary:         defaultFFmpegBinary,
			FrameRate:            defaultFrameRate,
			ConnectBaseDelay:     defaultConnectBaseDelay,
			ConnectMaxDelay:      defaultConnectMaxDelay,
			ConnectMaxAttempts:   defaultConnectMaxAttempts,
			ReadFailureThreshold: defaultReadFailureThreshold,
		},
		Detector: Detector{
			ConfidenceThreshold: defaultConfidenceThreshold,
			BirdClassID:         defaultBirdClassID,
			MinAreaRatio:        defaultMinAreaRatio,
			ROIX1:               0.25,
			ROIY1:               0.34,
			ROIX2:               0.62,
			ROIY2:               0.72,
			RequestTimeout:      defaultDetectorTimeout,
		},
		Session: Session{
			DetectionIntervalMS: defaultDetectionIntervalMS,
			AbsenceGracePeriod:  defaultAbsenceGracePeriod,
			VisitCooldown:       defaultVisitCooldown,
			MaxCapturesPerVisit: defaultMaxCapturesPerVisit,
			CaptureInterval:     defaultCaptureInterval,
		},
		Vision: Vision{
			BaseURL:        defaultVisionBaseURL,
			Model:          defaultVisionModel,
			MaxTokens:      defaultVisionMaxTokens,
			TimeoutSeconds: defaultVisionTimeout,
			MaxRetries:     defaultVisionMaxRetries,
			RetryBaseDelay: defaultVisionRetryBaseDelay,
			RetryMaxDelay:  defaultVisionRetryMaxDelay,
		},
		Analysis: Analysis{
			Workers:        defaultAnalysisWorkers,
			QueueWatermark: defaultQueueWatermark,
			DrainTimeout:   defaultDrainTimeout,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
			VisitStarted:   true,
			VisitCompleted: true,
			Errors:         true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
