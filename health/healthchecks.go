package health

import (
	"context"
	"fmt"
	"net/http"
	"time"

	fthealth "github.com/Financial-Times/go-fthealth/v1_1"
	"github.com/Financial-Times/service-status-go/gtg"
)

const credentialsTimeout = 10 * time.Second

type ExternalService interface {
	Endpoint() string
	GTG() error
}

// CredentialsVerifier checks that the configured API keys are accepted.
type CredentialsVerifier interface {
	VerifyCredentials(ctx context.Context) error
}

// HealthService runs application health checks, and provides the /__health http endpoint
type HealthService struct {
	fthealth.HealthCheck
	core        ExternalService
	credentials CredentialsVerifier
}

// NewHealthService returns a new HealthService
func NewHealthService(appSystemCode string, appName string, appDescription string, core ExternalService, credentials CredentialsVerifier) *HealthService {
	service := &HealthService{core: core, credentials: credentials}
	service.SystemCode = appSystemCode
	service.Name = appName
	service.Description = appDescription
	service.Checks = []fthealth.Check{
		service.coreCheck(),
		service.credentialsCheck(),
	}
	return service
}

// HealthCheckHandleFunc provides the http endpoint function
func (service *HealthService) HealthCheckHandleFunc() func(w http.ResponseWriter, r *http.Request) {
	return fthealth.Handler(service)
}

func (service *HealthService) coreCheck() fthealth.Check {
	return fthealth.Check{
		ID:               "check-cytomine-core-health",
		BusinessImpact:   "Projects, images and annotations cannot be read or reviewed",
		Name:             "Check the Cytomine core server",
		PanicGuide:       "https://doc.cytomine.org/admin-guide",
		Severity:         1,
		TechnicalSummary: fmt.Sprintf("Cytomine core is not answering its ping endpoint at %v", service.core.Endpoint()),
		Checker:          service.coreHealthChecker,
	}
}

func (service *HealthService) coreHealthChecker() (string, error) {
	if err := service.core.GTG(); err != nil {
		return "Cytomine core is not healthy", err
	}
	return "Cytomine core is healthy", nil
}

func (service *HealthService) credentialsCheck() fthealth.Check {
	return fthealth.Check{
		ID:               "check-cytomine-credentials",
		BusinessImpact:   "Every request to Cytomine is rejected",
		Name:             "Check the Cytomine API keys",
		PanicGuide:       "https://doc.cytomine.org/admin-guide",
		Severity:         2,
		TechnicalSummary: fmt.Sprintf("The configured key pair is not accepted by %v", service.core.Endpoint()),
		Checker:          service.credentialsHealthChecker,
	}
}

func (service *HealthService) credentialsHealthChecker() (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), credentialsTimeout)
	defer cancel()

	if err := service.credentials.VerifyCredentials(ctx); err != nil {
		return "Cytomine API keys are rejected", err
	}
	return "Cytomine API keys are valid", nil
}

// GTG is good to go as long as the core answers; rejected keys only degrade
// the health page.
func (service *HealthService) GTG() gtg.Status {
	check := func() gtg.Status {
		if _, err := service.coreHealthChecker(); err != nil {
			return gtg.Status{GoodToGo: false, Message: err.Error()}
		}
		return gtg.Status{GoodToGo: true}
	}
	return gtg.FailFastParallelCheck([]gtg.StatusChecker{check})()
}
