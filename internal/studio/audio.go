package studio

// AudioStatus is the state shown by the audio visualizer. No audio is
// captured; the status only drives the indicator.
type AudioStatus string

const (
	AudioIdle      AudioStatus = "idle"
	AudioReady     AudioStatus = "ready"
	AudioRecording AudioStatus = "recording"
)

// Valid reports whether s is a known status.
func (s AudioStatus) Valid() bool {
	switch s {
	case AudioIdle, AudioReady, AudioRecording:
		return true
	}
	return false
}

// Toggle starts recording from idle or ready and stops it otherwise.
func (s AudioStatus) Toggle() AudioStatus {
	if s == AudioRecording {
		return AudioIdle
	}
	return AudioRecording
}

func (s AudioStatus) IsRecording() bool {
	return s == AudioRecording
}
