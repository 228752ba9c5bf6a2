// Package pubsub carries generation jobs over Google Cloud Pub/Sub: push envelope
// decoding for the ingress endpoint and a topic publisher for the API.
package pubsub

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"

	pubsubv1 "google.golang.org/api/pubsub/v1"

	"github.com/tsubouchi/intelligence-agent-maker/internal/domain"
	"github.com/tsubouchi/intelligence-agent-maker/internal/usecase/generation"
)

// maxEnvelopeSize bounds a push request body.
const maxEnvelopeSize = 1 << 20

// PushEnvelope is the body Pub/Sub POSTs to a push subscription endpoint.
type PushEnvelope struct {
	Message      *pubsubv1.PubsubMessage `json:"message"`
	Subscription string                  `json:"subscription"`
}

// job is the message payload.
type job struct {
	Idea         string `json:"idea"`
	UserID       string `json:"userId"`
	SoftwareType string `json:"softwareType"`
	DeployTarget string `json:"deployTarget"`
}

// DecodePush reads a push envelope and returns the generation request it carries.
// Malformed envelopes fail with domain.ErrValidation; they will never succeed on redelivery.
func DecodePush(r io.Reader) (generation.Request, string, error) {
	var env PushEnvelope
	if err := json.NewDecoder(io.LimitReader(r, maxEnvelopeSize)).Decode(&env); err != nil {
		return generation.Request{}, "", domain.NewValidationError("envelope", "invalid JSON")
	}
	if env.Message == nil || env.Message.Data == "" {
		return generation.Request{}, "", domain.NewValidationError("message", "no Pub/Sub message")
	}

	data, err := base64.StdEncoding.DecodeString(env.Message.Data)
	if err != nil {
		return generation.Request{}, env.Message.MessageId, domain.NewValidationError("message.data", "invalid base64")
	}

	var j job
	if err := json.Unmarshal(data, &j); err != nil {
		return generation.Request{}, env.Message.MessageId,
			domain.NewValidationError("message.data", fmt.Sprintf("invalid job payload: %v", err))
	}
	return generation.Request{
		Idea:         j.Idea,
		UserID:       j.UserID,
		SoftwareType: j.SoftwareType,
		DeployTarget: j.DeployTarget,
	}, env.Message.MessageId, nil
}

// encodeJob serializes a request into base64 message data.
func encodeJob(req generation.Request) (string, error) {
	data, err := json.Marshal(job{
		Idea:         req.Idea,
		UserID:       req.UserID,
		SoftwareType: req.SoftwareType,
		DeployTarget: req.DeployTarget,
	})
	if err != nil {
		return "", fmt.Errorf("marshal job: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}
