package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"unihelp/internal/domain"
	"unihelp/internal/llm"
	"unihelp/internal/logging"
	"unihelp/internal/metrics"
)

const (
	emailTemperature = 0.5
	emailMaxTokens   = 600

	defaultEmailSubject = "Demande administrative"
)

const emailSystemPrompt = `Tu es un assistant qui génère des emails administratifs professionnels pour les étudiants de l'Institut International de Technologie.

Génère des emails:
- Formels et professionnels
- Concis et clairs
- Avec un objet approprié
- Correctement structurés (salutation, corps, formule de politesse)

Types de demandes courantes:
- Demande d'attestation de scolarité
- Demande de certificat de réussite
- Demande de convention de stage
- Justification d'absence
- Demande de rattrapage
- Réclamation
- Demande d'information sur les bourses
- Demande de rendez-vous

Format de réponse:
OBJET: [objet de l'email]

[corps de l'email]`

// RequestTypes lists the administrative requests offered by default.
var RequestTypes = []string{
	"Attestation de scolarité",
	"Certificat de réussite",
	"Convention de stage",
	"Justification d'absence",
	"Demande de rattrapage",
	"Réclamation",
	"Demande de bourse",
	"Rendez-vous administration",
	"Transfert de dossier",
	"Attestation d'inscription",
}

// StudentDetail is one labelled line of student information, e.g. Nom: Dupont.
type StudentDetail struct {
	Label string
	Value string
}

// Email is a generated administrative email.
type Email struct {
	Subject  string `json:"subject"`
	Body     string `json:"body"`
	FullText string `json:"full_text"`
}

// EmailGenerator drafts administrative emails with the completion provider.
// It does not use retrieval.
type EmailGenerator struct {
	completer llm.Completer
	logger    *zap.Logger
	metrics   *metrics.Metrics
}

func NewEmailGenerator(completer llm.Completer, logger *zap.Logger, m *metrics.Metrics) *EmailGenerator {
	return &EmailGenerator{
		completer: completer,
		logger:    logging.Or(logger).With(zap.String("component", "email")),
		metrics:   m,
	}
}

// Generate drafts an email for requestType. Empty detail values are skipped.
func (g *EmailGenerator) Generate(ctx context.Context, requestType string, details []StudentDetail, extra string) (Email, error) {
	requestType = strings.TrimSpace(requestType)
	if requestType == "" {
		return Email{}, fmt.Errorf("%w: request type is required", domain.ErrInvalidInput)
	}
	if g.completer == nil {
		return Email{}, fmt.Errorf("%w: no completion provider configured", domain.ErrCompletionService)
	}

	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: emailSystemPrompt},
		{Role: llm.RoleUser, Content: emailPrompt(requestType, details, extra)},
	}
	text, err := g.completer.Complete(ctx, messages, llm.Options{
		Temperature: emailTemperature,
		MaxTokens:   emailMaxTokens,
	})
	if err != nil {
		return Email{}, err
	}
	if strings.TrimSpace(text) == "" {
		return Email{}, errors.Join(domain.ErrCompletionService, errors.New("empty email"))
	}

	subject, body := parseEmail(text)
	g.metrics.Answered("email")
	g.logger.Info("generated email", zap.String("request_type", requestType), zap.String("subject", subject))
	return Email{Subject: subject, Body: body, FullText: text}, nil
}

func emailPrompt(requestType string, details []StudentDetail, extra string) string {
	var info strings.Builder
	for _, d := range details {
		if strings.TrimSpace(d.Value) == "" {
			continue
		}
		fmt.Fprintf(&info, "%s: %s\n", d.Label, d.Value)
	}
	return fmt.Sprintf("Type de demande: %s\n\nInformations de l'étudiant:\n%s\n\nInformations supplémentaires:\n%s\n\nGénère un email administratif professionnel pour cette demande.",
		requestType, info.String(), extra)
}

// parseEmail splits a reply into subject and body. The last "OBJET:" line
// sets the subject. Lines starting with OBJET but lacking the colon are
// dropped until a subject has been seen.
func parseEmail(text string) (subject, body string) {
	subject = defaultEmailSubject
	var lines []string
	found := false
	for _, line := range strings.Split(text, "\n") {
		upper := strings.ToUpper(line)
		switch {
		case strings.HasPrefix(upper, "OBJET:"):
			_, after, _ := strings.Cut(line, ":")
			subject = strings.TrimSpace(after)
			found = true
		case found || !strings.HasPrefix(upper, "OBJET"):
			lines = append(lines, line)
		}
	}
	return subject, strings.TrimSpace(strings.Join(lines, "\n"))
}
