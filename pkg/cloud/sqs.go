// Copyright 2024 PingCAP, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// See the License for the specific language governing permissions and
// limitations under the License.

package cloud

import (
	"context"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/sqs"
	"github.com/aws/aws-sdk-go/service/sqs/sqsiface"
	"github.com/goccy/go-json"
	"github.com/icrar/chiles02/pkg/capacity"
	cerrors "github.com/icrar/chiles02/pkg/errors"
	"github.com/pingcap/log"
	"go.uber.org/zap"
)

const (
	// DefaultQueueName is the queue nodes report readiness on.
	DefaultQueueName = "dfms-messages"

	maxMessagesPerReceive = 10
	// Receive long polls at most this many seconds; it stays well below the
	// coordinator poll interval.
	receiveWaitSeconds = 5
)

// SQSChannel is a capacity.ReadinessChannel over an SQS queue.
type SQSChannel struct {
	client   sqsiface.SQSAPI
	queueURL string
}

// NewSQSClient creates an SQS client from the session.
func NewSQSClient(sess *session.Session) sqsiface.SQSAPI {
	return sqs.New(sess)
}

// ResolveQueueURL looks the queue URL up by name.
func ResolveQueueURL(ctx context.Context, client sqsiface.SQSAPI, name string) (string, error) {
	out, err := client.GetQueueUrlWithContext(ctx, &sqs.GetQueueUrlInput{QueueName: aws.String(name)})
	if err != nil {
		return "", cerrors.WrapError(cerrors.ErrReadinessChannel, err, "resolve queue "+name)
	}
	return aws.StringValue(out.QueueUrl), nil
}

// NewSQSChannel creates a channel reading queueURL.
func NewSQSChannel(client sqsiface.SQSAPI, queueURL string) *SQSChannel {
	return &SQSChannel{client: client, queueURL: queueURL}
}

// QueueURL returns the queue the channel reads.
func (c *SQSChannel) QueueURL() string {
	return c.queueURL
}

// Receive implements capacity.ReadinessChannel.
func (c *SQSChannel) Receive(ctx context.Context) ([]capacity.Message, error) {
	out, err := c.client.ReceiveMessageWithContext(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:              aws.String(c.queueURL),
		MessageAttributeNames: aws.StringSlice([]string{capacity.CorrelationTag}),
		MaxNumberOfMessages:   aws.Int64(maxMessagesPerReceive),
		WaitTimeSeconds:       aws.Int64(receiveWaitSeconds),
	})
	if err != nil {
		return nil, cerrors.WrapError(cerrors.ErrReadinessChannel, err, "receive")
	}

	msgs := make([]capacity.Message, 0, len(out.Messages))
	for _, m := range out.Messages {
		msg := capacity.Message{
			ID:     aws.StringValue(m.MessageId),
			Handle: aws.StringValue(m.ReceiptHandle),
		}
		if attr, ok := m.MessageAttributes[capacity.CorrelationTag]; ok && attr != nil {
			msg.CorrelationID = aws.StringValue(attr.StringValue)
		}
		var readiness capacity.NodeReadiness
		if err := json.Unmarshal([]byte(aws.StringValue(m.Body)), &readiness); err != nil {
			log.Warn("undecodable readiness message",
				zap.String("messageID", msg.ID), zap.Error(err))
		} else {
			msg.Readiness = &readiness
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

// Ack implements capacity.ReadinessChannel by deleting the message.
func (c *SQSChannel) Ack(ctx context.Context, msg capacity.Message) error {
	_, err := c.client.DeleteMessageWithContext(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(c.queueURL),
		ReceiptHandle: aws.String(msg.Handle),
	})
	return cerrors.WrapError(cerrors.ErrReadinessChannel, err, "delete "+msg.ID)
}

// Release implements capacity.ReadinessChannel by making the message visible
// again right away.
func (c *SQSChannel) Release(ctx context.Context, msg capacity.Message) error {
	_, err := c.client.ChangeMessageVisibilityWithContext(ctx, &sqs.ChangeMessageVisibilityInput{
		QueueUrl:          aws.String(c.queueURL),
		ReceiptHandle:     aws.String(msg.Handle),
		VisibilityTimeout: aws.Int64(0),
	})
	return cerrors.WrapError(cerrors.ErrReadinessChannel, err, "release "+msg.ID)
}
