package sns

import (
	"context"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/bobur-yusupov/daylog-sub000/internal/config"
)

// AlertPublisher pushes security notifications to an operations topic.
type AlertPublisher interface {
	PublishAlert(ctx context.Context, subject, message string) error
}

type publisher struct {
	client   *sns.Client
	topicARN string
}

// NewPublisher returns nil, nil when no topic ARN is configured; callers treat
// a nil publisher as alerting disabled.
func NewPublisher(cfg *config.Config) (AlertPublisher, error) {
	if cfg.SNSAlertTopicARN == "" {
		return nil, nil
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(cfg.SNSRegion),
	)
	if err != nil {
		return nil, err
	}
	return &publisher{
		client:   sns.NewFromConfig(awsCfg),
		topicARN: cfg.SNSAlertTopicARN,
	}, nil
}

func (p *publisher) PublishAlert(ctx context.Context, subject, message string) error {
	_, err := p.client.Publish(ctx, &sns.PublishInput{
		TopicArn: &p.topicARN,
		Subject:  &subject,
		Message:  &message,
	})
	return err
}
