// internal/services/notification_service.go
package services

import (
	"bytes"
	"fmt"
	"html/template"
	"net/smtp"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/thriftbay/marketplace-backend/internal/config"
	"github.com/thriftbay/marketplace-backend/internal/models"
)

// NotificationService writes in-app notifications and sends email. All of it
// is best-effort: settlement flows call these after their state transitions
// commit, and a failure here is logged, never propagated.
type NotificationService struct {
	db     *gorm.DB
	config *config.Config
}

type EmailTemplate struct {
	Subject string
	Body    string
}

func NewNotificationService(db *gorm.DB, config *config.Config) *NotificationService {
	return &NotificationService{
		db:     db,
		config: config,
	}
}

// Payment notifications

func (s *NotificationService) SendPaymentReceivedNotification(buyer *models.User, order *models.Order, amount float64) error {
	if err := s.createNotification(buyer.ID, models.NotificationTypePayment,
		"Payment received",
		fmt.Sprintf("Your payment of %.2f for order %s was received.", amount, order.ID)); err != nil {
		return err
	}

	data := map[string]interface{}{
		"Username": buyer.Username,
		"Amount":   amount,
		"OrderURL": fmt.Sprintf("%s/orders/%s", s.config.Frontend.BaseURL, order.ID),
	}

	template := s.getEmailTemplate("payment_received")
	body, err := s.renderTemplate(template.Body, data)
	if err != nil {
		return fmt.Errorf("failed to render email template: %w", err)
	}

	return s.sendEmail(buyer.Email, "Payment Received", body)
}

func (s *NotificationService) SendSaleNotification(seller *models.User, product *models.Product, earnings float64) error {
	if err := s.createNotification(seller.ID, models.NotificationTypeSale,
		"Item sold",
		fmt.Sprintf("Your item \"%s\" sold. %.2f is pending release.", product.Title, earnings)); err != nil {
		return err
	}

	data := map[string]interface{}{
		"SellerName":   seller.Username,
		"ProductTitle": product.Title,
		"Earnings":     earnings,
	}

	template := s.getEmailTemplate("sale")
	body, err := s.renderTemplate(template.Body, data)
	if err != nil {
		return fmt.Errorf("failed to render email template: %w", err)
	}

	return s.sendEmail(seller.Email, "Item Sold - "+product.Title, body)
}

// Escrow notifications

func (s *NotificationService) SendEscrowReleasedNotification(sellerID uuid.UUID, productTitle string, amount float64) error {
	return s.createNotification(sellerID, models.NotificationTypeEscrow,
		"Earnings released",
		fmt.Sprintf("%.2f from the sale of \"%s\" is now available for withdrawal.", amount, productTitle))
}

func (s *NotificationService) SendReferralRewardNotification(referrerID uuid.UUID, reward float64) error {
	return s.createNotification(referrerID, models.NotificationTypeReferral,
		"Referral reward",
		fmt.Sprintf("You earned a %.2f referral reward from a purchase by someone you referred.", reward))
}

// Refund notifications

func (s *NotificationService) SendRefundRequestedNotification(tx *models.Transaction) error {
	if err := s.createNotification(tx.UserID, models.NotificationTypeRefund,
		"Refund requested",
		fmt.Sprintf("Your refund request for transaction %s was received and is under review.", tx.Reference)); err != nil {
		return err
	}

	// Fan out to admins so the request gets reviewed.
	var admins []models.User
	if err := s.db.Where("user_type = ?", models.UserTypeAdmin).Find(&admins).Error; err != nil {
		return fmt.Errorf("failed to load admins: %w", err)
	}
	for _, admin := range admins {
		if err := s.createNotification(admin.ID, models.NotificationTypeRefund,
			"Refund request pending review",
			fmt.Sprintf("A refund was requested for transaction %s.", tx.Reference)); err != nil {
			logrus.WithError(err).WithField("admin_id", admin.ID).Warn("Failed to notify admin of refund request")
		}
	}
	return nil
}

func (s *NotificationService) SendRefundDecisionNotification(tx *models.Transaction, approved bool, notes string) error {
	title := "Refund rejected"
	body := fmt.Sprintf("Your refund request for transaction %s was rejected.", tx.Reference)
	if approved {
		title = "Refund processed"
		body = fmt.Sprintf("Your refund of %.2f for transaction %s has been processed.", tx.Amount, tx.Reference)
	}
	if notes != "" {
		body += " Note: " + notes
	}

	if err := s.createNotification(tx.UserID, models.NotificationTypeRefund, title, body); err != nil {
		return err
	}

	var buyer models.User
	if err := s.db.First(&buyer, "id = ?", tx.UserID).Error; err != nil {
		return fmt.Errorf("buyer not found: %w", err)
	}

	data := map[string]interface{}{
		"Username":  buyer.Username,
		"Reference": tx.Reference,
		"Amount":    tx.Amount,
		"Approved":  approved,
		"Notes":     notes,
	}

	template := s.getEmailTemplate("refund_decision")
	emailBody, err := s.renderTemplate(template.Body, data)
	if err != nil {
		return fmt.Errorf("failed to render email template: %w", err)
	}

	return s.sendEmail(buyer.Email, title, emailBody)
}

func (s *NotificationService) SendClawbackNotification(sellerID uuid.UUID, productTitle string, amount float64) error {
	return s.createNotification(sellerID, models.NotificationTypeRefund,
		"Sale refunded",
		fmt.Sprintf("The sale of \"%s\" was refunded; %.2f was deducted from your pending earnings.", productTitle, amount))
}

// Withdrawal notifications

func (s *NotificationService) SendWithdrawalNotification(user *models.User, amount float64, reference string) error {
	if err := s.createNotification(user.ID, models.NotificationTypeWithdraw,
		"Withdrawal processed",
		fmt.Sprintf("Your withdrawal of %.2f (ref %s) is on its way to your bank account.", amount, reference)); err != nil {
		return err
	}

	data := map[string]interface{}{
		"Username":  user.Username,
		"Amount":    amount,
		"Reference": reference,
	}

	template := s.getEmailTemplate("withdrawal")
	body, err := s.renderTemplate(template.Body, data)
	if err != nil {
		return fmt.Errorf("failed to render email template: %w", err)
	}

	return s.sendEmail(user.Email, "Withdrawal Processed", body)
}

// Queries

func (s *NotificationService) ListNotifications(userID uuid.UUID, unreadOnly bool, limit int) ([]models.Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	query := s.db.Where("recipient_id = ?", userID).Order("created_at DESC").Limit(limit)
	if unreadOnly {
		query = query.Where("read_at IS NULL")
	}

	var notifications []models.Notification
	if err := query.Find(&notifications).Error; err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	return notifications, nil
}

func (s *NotificationService) MarkRead(userID, notificationID uuid.UUID) error {
	result := s.db.Model(&models.Notification{}).
		Where("id = ? AND recipient_id = ? AND read_at IS NULL", notificationID, userID).
		Update("read_at", gorm.Expr("CURRENT_TIMESTAMP"))
	if result.Error != nil {
		return fmt.Errorf("failed to mark notification read: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Helper methods

func (s *NotificationService) createNotification(recipientID uuid.UUID, nType models.NotificationType, title, body string) error {
	notification := &models.Notification{
		RecipientID: recipientID,
		Type:        nType,
		Title:       title,
		Body:        body,
	}
	if err := s.db.Create(notification).Error; err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}

func (s *NotificationService) sendEmail(to, subject, body string) error {
	if s.config.Email.SMTPHost == "" {
		// Email not configured, just log
		logrus.WithFields(logrus.Fields{"to": to, "subject": subject}).Debug("Email sending skipped (SMTP not configured)")
		return nil
	}

	auth := smtp.PlainAuth("", s.config.Email.SMTPUsername, s.config.Email.SMTPPassword, s.config.Email.SMTPHost)

	msg := []byte(fmt.Sprintf("To: %s\r\nSubject: %s\r\nContent-Type: text/html; charset=\"UTF-8\"\r\n\r\n%s", to, subject, body))

	addr := fmt.Sprintf("%s:%s", s.config.Email.SMTPHost, s.config.Email.SMTPPort)
	return smtp.SendMail(addr, auth, s.config.Email.FromEmail, []string{to}, msg)
}

func (s *NotificationService) renderTemplate(templateStr string, data interface{}) (string, error) {
	tmpl, err := template.New("email").Parse(templateStr)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}

	return buf.String(), nil
}

func (s *NotificationService) getEmailTemplate(templateType string) EmailTemplate {
	// In a real implementation, these would be loaded from files or database
	templates := map[string]EmailTemplate{
		"payment_received": {
			Subject: "Payment Received",
			Body: `
<!DOCTYPE html>
<html>
<body>
	<h2>Payment received</h2>
	<p>Hello {{.Username}},</p>
	<p>We received your payment of {{.Amount}}. Your order is being prepared.</p>
	<a href="{{.OrderURL}}">View Order</a>
	<p>Best regards,<br>ThriftBay Team</p>
</body>
</html>`,
		},
		"sale": {
			Subject: "Item Sold",
			Body: `
<!DOCTYPE html>
<html>
<body>
	<h2>Congratulations {{.SellerName}}!</h2>
	<p>Your item "{{.ProductTitle}}" has been sold.</p>
	<p>{{.Earnings}} will be released to your balance after the holding period.</p>
	<p>Best regards,<br>ThriftBay Team</p>
</body>
</html>`,
		},
		"refund_decision": {
			Subject: "Refund Update",
			Body: `
<!DOCTYPE html>
<html>
<body>
	<p>Hello {{.Username}},</p>
	{{if .Approved}}
	<p>Your refund of {{.Amount}} for transaction {{.Reference}} has been processed.</p>
	{{else}}
	<p>Your refund request for transaction {{.Reference}} was rejected.</p>
	{{end}}
	{{if .Notes}}<p>Note: {{.Notes}}</p>{{end}}
	<p>Best regards,<br>ThriftBay Team</p>
</body>
</html>`,
		},
		"withdrawal": {
			Subject: "Withdrawal Processed",
			Body: `
<!DOCTYPE html>
<html>
<body>
	<p>Hello {{.Username}},</p>
	<p>Your withdrawal of {{.Amount}} (reference {{.Reference}}) has been sent to your bank account.</p>
	<p>Best regards,<br>ThriftBay Team</p>
</body>
</html>`,
		},
	}

	if template, exists := templates[templateType]; exists {
		return template
	}

	// Default template
	return EmailTemplate{
		Subject: "Notification",
		Body:    "<p>{{.Message}}</p>",
	}
}
