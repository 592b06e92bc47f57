package task

import (
	"fmt"
	"strings"
)

var (
	videoExts = []string{".mp4", ".mov", ".avi", ".mkv", ".webm"}
	imageExts = []string{".jpg", ".jpeg", ".png", ".gif", ".webp"}
	audioExts = []string{".mp3", ".wav", ".m4a", ".flac"}
)

// Outputs sorts a task's raw outputs by media kind.
type Outputs struct {
	TaskID        string   `yaml:"taskId"`
	VideoURL      string   `yaml:"videoUrl,omitempty"`
	AudioURL      string   `yaml:"audioUrl,omitempty"`
	Text          string   `yaml:"text,omitempty"`
	FirstImageURL string   `yaml:"firstImageUrl,omitempty"`
	ImageURLs     []string `yaml:"imageUrls,omitempty"`
}

// Classify sorts outputs by extension. Only the first video and audio are
// kept, every image is kept in order, and the first string that is neither
// media nor a URL is taken as generated text. Non-string outputs are ignored.
func Classify(taskID string, outputs []any) Outputs {
	out := Outputs{TaskID: taskID}
	for _, o := range outputs {
		s, ok := o.(string)
		if !ok {
			continue
		}
		lower := strings.ToLower(s)
		switch {
		case containsAny(lower, videoExts):
			if out.VideoURL == "" {
				out.VideoURL = s
			}
		case containsAny(lower, imageExts):
			out.ImageURLs = append(out.ImageURLs, s)
		case containsAny(lower, audioExts):
			if out.AudioURL == "" {
				out.AudioURL = s
			}
		default:
			if out.Text == "" && !isURL(s) {
				out.Text = s
			}
		}
	}
	if len(out.ImageURLs) > 0 {
		out.FirstImageURL = out.ImageURLs[0]
	}
	return out
}

// Check turns a status result into outputs. A failed task is an error, a
// pending one yields empty outputs and any other unfinished state is an error.
func Check(r Result) (Outputs, error) {
	switch {
	case r.Status == StatusCompleted:
		return Classify(r.ID, r.Outputs), nil
	case r.Status == StatusFailed:
		msg := r.Error
		if msg == "" {
			msg = "no reason given"
		}
		return Outputs{}, fmt.Errorf("%w: %s", ErrFailed, msg)
	case Pending(r.Status):
		return Outputs{TaskID: r.ID}, nil
	}
	return Outputs{}, fmt.Errorf("unknown task status: %q", r.Status)
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func isURL(s string) bool {
	for _, prefix := range []string{"http://", "https://", "ftp://", "data:"} {
		if strings.HasPrefix(s, prefix) {
			return true
		}
	}
	return false
}
