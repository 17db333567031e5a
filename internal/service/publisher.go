package service

import (
	"go.uber.org/zap"

	"github.com/ifuryst/postshare/internal/config"
	"github.com/ifuryst/postshare/internal/models"
	"github.com/ifuryst/postshare/internal/service/publisher"
	"github.com/ifuryst/postshare/internal/service/publisher/linkedin"
)

// PublisherService owns the configured platform publishers.
type PublisherService struct {
	logger  *zap.Logger
	config  *config.Config
	manager *publisher.Manager
}

func NewPublisherService(cfg *config.Config, logger *zap.Logger) (*PublisherService, error) {
	service := &PublisherService{
		logger:  logger,
		config:  cfg,
		manager: publisher.NewPublishManager(logger),
	}

	if err := service.registerPublishers(); err != nil {
		return nil, err
	}
	return service, nil
}

func (s *PublisherService) registerPublishers() error {
	linkedInPublisher := linkedin.NewPublisher(linkedin.Options{
		Endpoint:        s.config.LinkedIn.Endpoint,
		Timeout:         config.Duration(s.config.LinkedIn.Timeout),
		RatePerSec:      s.config.LinkedIn.RatePerSec,
		Burst:           s.config.LinkedIn.Burst,
		BreakerFailures: s.config.LinkedIn.BreakerFailures,
		BreakerTimeout:  config.Duration(s.config.LinkedIn.BreakerTimeout),
	}, s.logger)

	if err := s.manager.RegisterPublisher(linkedInPublisher); err != nil {
		s.logger.Error("Failed to register LinkedIn publisher", zap.Error(err))
		return err
	}
	return nil
}

// LinkedIn returns the LinkedIn publisher.
func (s *PublisherService) LinkedIn() (publisher.Publisher, error) {
	return s.manager.GetPublisher(models.ProviderLinkedIn)
}

// GetAvailablePlatforms returns all available publishing platforms
func (s *PublisherService) GetAvailablePlatforms() []string {
	return s.manager.GetAvailablePlatforms()
}
