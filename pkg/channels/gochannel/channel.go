// Package gochannel provides the in-process watermill pub/sub used when the API
// and the workers share one process, and in tests.
package gochannel

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// CreateChannel returns one GoChannel acting as both publisher and subscriber.
// Every subscription receives every message published after it subscribed, in
// publish order: Publish returns only once each subscriber acked the message.
func CreateChannel(logger watermill.LoggerAdapter) *gochannel.GoChannel {
	return gochannel.NewGoChannel(
		gochannel.Config{
			OutputChannelBuffer:            256,
			Persistent:                     false,
			BlockPublishUntilSubscriberAck: true,
		},
		logger,
	)
}
