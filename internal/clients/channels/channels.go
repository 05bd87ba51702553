// Package channels implements a minimal interfaces.ChannelAdapter for the
// two growth channels named in the data model. The actual Pinterest/YouTube
// publish APIs are external collaborators out of scope for this queue; this
// logs the attempt and returns a synthetic post id, the local default that
// lets the growth publish engine run end to end without live credentials.
package channels

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/domainpress/pipeline/internal/common"
	"github.com/domainpress/pipeline/internal/interfaces"
	"github.com/domainpress/pipeline/internal/models"
)

// LoggingAdapter "publishes" by logging the attempt and deriving a
// deterministic external post id from the payload.
type LoggingAdapter struct {
	logger *common.Logger
}

// NewLoggingAdapter builds a LoggingAdapter over logger.
func NewLoggingAdapter(logger *common.Logger) *LoggingAdapter {
	return &LoggingAdapter{logger: logger}
}

func (a *LoggingAdapter) Publish(ctx context.Context, channel string, payload map[string]any, credential string) (*interfaces.PublishResult, error) {
	if channel != models.ChannelPinterest && channel != models.ChannelYouTubeShorts {
		return nil, fmt.Errorf("unsupported growth channel %q", channel)
	}
	if credential == "" {
		a.logger.Warn().Str("channel", channel).Msg("publishing without a resolved credential")
	}

	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%v", channel, payload["destinationUrl"])))
	postID := hex.EncodeToString(sum[:])[:16]

	a.logger.Info().Str("channel", channel).Str("external_post_id", postID).Msg("published growth creative")

	return &interfaces.PublishResult{
		ExternalPostID: postID,
		Status:         "published",
		Metadata:       map[string]any{"assetId": payload["assetId"]},
	}, nil
}
