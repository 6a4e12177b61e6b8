// Package email sends risk alert emails through SendGrid. Each email
// carries the report photo and a rendered map of the incident location
// inline.
package email

import (
	"encoding/base64"
	"fmt"
	"strings"

	"report-scoring-pipeline/config"
	"report-scoring-pipeline/metrics"
	"report-scoring-pipeline/models"

	"github.com/apex/log"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

const (
	reportImgCid = "report_image"
	mapImgCid    = "map_image"
)

// AlertSender handles alert email sending.
type AlertSender struct {
	config *config.Config
	client *sendgrid.Client
}

// NewAlertSender creates a new alert sender.
func NewAlertSender(cfg *config.Config) *AlertSender {
	return &AlertSender{
		config: cfg,
		client: sendgrid.NewSendClient(cfg.SendGridAPIKey),
	}
}

// SendAlerts sends the alert to every recipient. A failure for one
// recipient does not stop delivery to the rest.
func (s *AlertSender) SendAlerts(recipients []models.AlertRecipient, alert models.Alert, reportImage, mapImage []byte) error {
	log.Infof("Sending %s risk alert for report %d to %d recipients", alert.RiskLevel, alert.Seq, len(recipients))

	for _, recipient := range recipients {
		if err := s.sendOneAlert(recipient.Email, alert, reportImage, mapImage); err != nil {
			metrics.AlertsSentTotal.WithLabelValues("error").Inc()
			log.Warnf("Error sending alert to %s: %v", recipient.Email, err)
			// Continue with other recipients
			continue
		}
		metrics.AlertsSentTotal.WithLabelValues("success").Inc()
	}
	return nil
}

func (s *AlertSender) sendOneAlert(recipient string, alert models.Alert, reportImage, mapImage []byte) error {
	from := mail.NewEmail(s.config.SendGridFromName, s.config.SendGridFromEmail)
	to := mail.NewEmail(recipient, recipient)

	subject := fmt.Sprintf("[%s] Environmental risk alert", strings.ToUpper(string(alert.RiskLevel)))
	if alert.Title != "" {
		subject = fmt.Sprintf("[%s] %s", strings.ToUpper(string(alert.RiskLevel)), alert.Title)
	}

	message := mail.NewV3Mail()
	message.SetFrom(from)
	message.Subject = subject

	p := mail.NewPersonalization()
	p.AddTos(to)
	message.AddPersonalizations(p)

	message.AddContent(mail.NewContent("text/plain", s.alertText(alert)))
	message.AddContent(mail.NewContent("text/html", s.alertHTML(alert, len(mapImage) > 0)))

	if len(reportImage) > 0 {
		reportAttachment := mail.NewAttachment()
		reportAttachment.SetContent(base64.StdEncoding.EncodeToString(reportImage))
		reportAttachment.SetType("image/jpg")
		reportAttachment.SetFilename("report.jpg")
		reportAttachment.SetDisposition("inline")
		reportAttachment.SetContentID(reportImgCid)
		message.AddAttachment(reportAttachment)
	}

	if len(mapImage) > 0 {
		mapAttachment := mail.NewAttachment()
		mapAttachment.SetContent(base64.StdEncoding.EncodeToString(mapImage))
		mapAttachment.SetType("image/png")
		mapAttachment.SetFilename("map.png")
		mapAttachment.SetDisposition("inline")
		mapAttachment.SetContentID(mapImgCid)
		message.AddAttachment(mapAttachment)
	}

	response, err := s.client.Send(message)
	if err != nil {
		return err
	}

	log.Infof("Alert sent to %s! Status: %d", recipient, response.StatusCode)
	return nil
}

func (s *AlertSender) alertText(alert models.Alert) string {
	location := alert.Location
	if location == "" {
		location = fmt.Sprintf("%.5f, %.5f", alert.Latitude, alert.Longitude)
	}
	return fmt.Sprintf(`Hello,

A new environmental report in your area was scored as %s risk.

REPORT:
Title: %s
Location: %s
Confidence: %d%%

This email contains the report photo and a map of the location.

Best regards,
The EcoWatch Team`,
		alert.RiskLevel,
		alert.Title,
		location,
		alert.Confidence)
}

func (s *AlertSender) alertHTML(alert models.Alert, hasMap bool) string {
	location := alert.Location
	if location == "" {
		location = fmt.Sprintf("%.5f, %.5f", alert.Latitude, alert.Longitude)
	}

	mapSection := ""
	if hasMap {
		mapSection = fmt.Sprintf(`
    <h3>Location Map:</h3>
    <img src="cid:%s" alt="Map" style="max-width: 100%%; height: auto; border-radius: 5px;">`, mapImgCid)
	}

	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
    <meta charset="utf-8">
    <title>EcoWatch Alert</title>
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
        .banner { padding: 15px 20px; border-radius: 5px; margin-bottom: 20px; color: #fff; background-color: %s; }
        .details { background-color: #e9ecef; padding: 15px; border-radius: 5px; margin: 15px 0; }
    </style>
</head>
<body>
    <div class="banner">
        <h2>%s risk report</h2>
    </div>

    <div class="details">
        <p><strong>Title:</strong> %s</p>
        <p><strong>Location:</strong> %s</p>
        <p><strong>Confidence:</strong> %d%%</p>
    </div>

    <h3>Report Photo:</h3>
    <img src="cid:%s" alt="Report Photo" style="max-width: 100%%; height: auto; border-radius: 5px;">
    %s

    <p><em>Best regards,<br>The EcoWatch Team</em></p>
</body>
</html>`,
		bannerColor(alert.RiskLevel),
		strings.ToUpper(string(alert.RiskLevel)),
		alert.Title,
		location,
		alert.Confidence,
		reportImgCid,
		mapSection)
}

func bannerColor(risk models.RiskLevel) string {
	switch risk {
	case models.RiskCritical:
		return "#dc3545"
	case models.RiskHigh:
		return "#fd7e14"
	default:
		return "#28a745"
	}
}
