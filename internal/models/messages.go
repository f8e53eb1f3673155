package models

import "time"

// ClusterJob is the message published to NATS to request a clustering run
// for one event.
type ClusterJob struct {
	EventCode     string            `json:"event_code"`
	Algorithm     string            `json:"algorithm"`
	Preprocessing string            `json:"preprocessing,omitempty"`
	Params        map[string]string `json:"params,omitempty"`
	RequestedAt   time.Time         `json:"requested_at"`
}

// ImageProcessed is published once detection for an uploaded image finishes,
// successfully or not.
type ImageProcessed struct {
	EventCode  string    `json:"event_code"`
	ImageUUID  string    `json:"image_uuid"`
	FaceCount  int       `json:"face_count"`
	Failed     bool      `json:"failed,omitempty"`
	FinishedAt time.Time `json:"finished_at"`
}

// ClusteringFinished is published after a clustering run completes.
type ClusteringFinished struct {
	EventCode  string    `json:"event_code"`
	Algorithm  string    `json:"algorithm"`
	Faces      int       `json:"faces"`
	Clusters   int       `json:"clusters"`
	FinishedAt time.Time `json:"finished_at"`
}
