package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/intellisync/go-mcp/pkg/tool"
)

// EmailTemplate holds the parts an email is assembled from. `{var}` markers
// in the subject and body are filled from the request variables.
type EmailTemplate struct {
	Subject  string
	Greeting string
	Body     string
	Closing  string
}

// EmailComposerOptions configure an EmailComposer.
type EmailComposerOptions struct {
	Templates     map[string]EmailTemplate
	CompanyName   string
	DefaultSender string
}

// EmailComposer assembles structured emails from named templates.
type EmailComposer struct {
	templates     map[string]EmailTemplate
	companyName   string
	defaultSender string
}

// NewEmailComposer creates an email composer tool. When no templates are
// supplied the built-in set is used.
func NewEmailComposer(opts EmailComposerOptions) *EmailComposer {
	templates := opts.Templates
	if len(templates) == 0 {
		templates = defaultEmailTemplates()
	}
	company := opts.CompanyName
	if company == "" {
		company = "IntelliSync Solutions"
	}
	sender := opts.DefaultSender
	if sender == "" {
		sender = "The IntelliSync Team"
	}
	return &EmailComposer{
		templates:     templates,
		companyName:   company,
		defaultSender: sender,
	}
}

type emailInput struct {
	TemplateName   string         `mapstructure:"template_name"`
	RecipientName  string         `mapstructure:"recipient_name"`
	RecipientEmail string         `mapstructure:"recipient_email"`
	Subject        string         `mapstructure:"subject"`
	SenderName     string         `mapstructure:"sender_name"`
	CustomContent  string         `mapstructure:"custom_content"`
	Variables      map[string]any `mapstructure:"variables"`
}

// Execute implements tool.Tool.
func (ec *EmailComposer) Execute(_ context.Context, input map[string]any) (*tool.Result, error) {
	start := time.Now()

	var in emailInput
	if err := decodeInput(input, &in); err != nil {
		return nil, tool.NewError(fmt.Sprintf("failed to generate email: %v", err), "EMAIL_GENERATION_ERROR").
			WithDetails(map[string]any{"error_type": fmt.Sprintf("%T", err)})
	}
	if in.TemplateName == "" {
		return nil, tool.NewError("no template name provided", "MISSING_TEMPLATE")
	}
	template, ok := ec.templates[in.TemplateName]
	if !ok {
		return nil, tool.NewError(fmt.Sprintf("template %q not found", in.TemplateName), "UNKNOWN_TEMPLATE").
			WithDetails(map[string]any{"available_templates": ec.templateNames()})
	}

	sender := in.SenderName
	if sender == "" {
		sender = ec.defaultSender
	}

	subject := in.Subject
	if subject == "" {
		subject = template.Subject
	}
	subject = substituteBraceVars(subject, in.Variables)

	body := ec.formatBody(template, in.RecipientName, sender, in.CustomContent, in.Variables)

	result := tool.NewResult(tool.StatusSuccess, map[string]any{
		"to":           in.RecipientEmail,
		"subject":      subject,
		"body":         body,
		"from":         fmt.Sprintf("%s <noreply@intellisync.example.com>", sender),
		"generated_at": time.Now().UTC().Format(time.RFC3339),
	}, map[string]any{
		"template_name": in.TemplateName,
		"body_length":   len(body),
		"personalized":  in.RecipientName != "",
	})
	return result.WithExecutionTime(time.Since(start)), nil
}

// ValidateInput implements tool.Tool.
func (ec *EmailComposer) ValidateInput(input map[string]any) bool {
	raw, ok := input["template_name"]
	if !ok {
		return false
	}
	name, isString := raw.(string)
	if !isString {
		return false
	}
	if _, known := ec.templates[name]; !known {
		return false
	}
	if vars, present := input["variables"]; present {
		if _, isMap := vars.(map[string]any); !isMap {
			return false
		}
	}
	return true
}

// Capabilities implements tool.Tool.
func (ec *EmailComposer) Capabilities() map[string]any {
	return map[string]any{
		"description": "Creates well-structured emails from templates",
		"templates":   ec.templateNames(),
		"features": map[string]any{
			"personalization":       "Include recipient name and custom content",
			"variable_substitution": "Replace {variable} placeholders with values",
		},
		"input_schema": map[string]any{
			"template_name":   "Name of the template to use",
			"recipient_name":  "Name of the recipient",
			"recipient_email": "Email of the recipient",
			"subject":         "Optional custom subject line",
			"sender_name":     "Optional sender name",
			"custom_content":  "Optional custom content to include",
			"variables":       "Optional variables to fill in the template",
		},
		"output_schema": map[string]any{
			"to":           "Recipient email address",
			"subject":      "Email subject line",
			"body":         "Formatted email body",
			"from":         "Sender information",
			"generated_at": "Timestamp of generation",
		},
	}
}

func (ec *EmailComposer) formatBody(template EmailTemplate, recipientName, senderName, customContent string, variables map[string]any) string {
	recipientPrefix := ""
	if recipientName != "" {
		recipientPrefix = " " + recipientName
	}
	greeting := strings.ReplaceAll(template.Greeting, "{recipient_prefix}", recipientPrefix)

	body := substituteBraceVars(template.Body, variables)
	if customContent != "" {
		body += "\n\n" + customContent
	}

	parts := []string{
		greeting,
		"",
		body,
		"",
		template.Closing,
		senderName,
		ec.companyName,
	}
	return strings.Join(parts, "\n")
}

func (ec *EmailComposer) templateNames() []string {
	names := make([]string, 0, len(ec.templates))
	for name := range ec.templates {
		names = append(names, name)
	}
	return names
}

func substituteBraceVars(s string, variables map[string]any) string {
	for key, value := range variables {
		s = strings.ReplaceAll(s, "{"+key+"}", fmt.Sprint(value))
	}
	return s
}

func defaultEmailTemplates() map[string]EmailTemplate {
	return map[string]EmailTemplate{
		"follow_up": {
			Subject:  "Following up on our conversation",
			Greeting: "Hello{recipient_prefix},",
			Body:     "I hope this email finds you well. I wanted to follow up on our previous conversation about {topic}.\n\nLet me know if you have any questions or if you'd like to schedule some time to discuss further.",
			Closing:  "Best regards,",
		},
		"proposal": {
			Subject:  "Proposal for {project_name}",
			Greeting: "Dear{recipient_prefix},",
			Body:     "Thank you for the opportunity to present this proposal for {project_name}.\n\nBased on our discussions, we've prepared a comprehensive solution that addresses your requirements. You'll find the details attached to this email.",
			Closing:  "Looking forward to your feedback,",
		},
		"meeting_request": {
			Subject:  "Meeting Request: {topic}",
			Greeting: "Hello{recipient_prefix},",
			Body:     "I'd like to schedule a meeting to discuss {topic}.\n\nWould you be available on {proposed_date} at {proposed_time}? If not, please let me know what times work best for you in the coming week.",
			Closing:  "Thank you,",
		},
		"welcome": {
			Subject:  "Welcome to IntelliSync Solutions!",
			Greeting: "Welcome{recipient_prefix}!",
			Body:     "Thank you for choosing IntelliSync Solutions. We're excited to have you onboard and look forward to helping you achieve your goals.\n\nYour account has been successfully created and is now ready to use.",
			Closing:  "Warm regards,",
		},
		"status_update": {
			Subject:  "Status Update: {project_name}",
			Greeting: "Hello{recipient_prefix},",
			Body:     "I wanted to provide you with an update on the status of {project_name}.\n\nCurrent Progress: {progress}%\n\nIs there anything specific you'd like us to prioritize or address?",
			Closing:  "Best regards,",
		},
	}
}
