package agent

import (
	"strings"

	"github.com/aleenlabs/aleen-agents/internal/models"
)

// Keyword tables for intent detection on messages from fully onboarded
// users. Matching is case-insensitive substring search over the latest
// message and the recent memory.
var (
	nutritionKeywords = []string{
		"plano", "dieta", "refeição", "refeicao", "receita", "comida",
		"alimento", "alimentação", "alimentacao", "cardápio", "cardapio",
		"café da manhã", "cafe da manha", "almoço", "almoco", "jantar",
		"lanche", "caloria", "proteína", "proteina", "nutri", "comer",
	}
	salesKeywords = []string{
		"preço", "preco", "plano premium", "assinar", "assinatura",
		"pagamento", "pagar", "valor", "quanto custa", "contratar", "upgrade",
	}
	supportKeywords = []string{
		"ajuda", "problema", "erro", "não funciona", "nao funciona",
		"dúvida", "duvida", "como faço", "como faco", "suporte", "cancelar",
	}
)

// containsAny reports whether text contains any of the keywords.
func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

// Select chooses the agent for an inbound message. User state decides first;
// only fully onboarded users are routed by intent. No signal matching means
// the conversation is out of context.
//
// Selection is pure: it reads the current snapshot and its inputs, and
// never touches the store.
func (r *Registry) Select(uc models.UserContext, memory []models.Turn, message string) (*models.AgentDefinition, error) {
	switch uc.State {
	case models.UserStateNew:
		return r.Get(models.AgentOnboarding)
	case models.UserStateIncompleteOnboarding:
		return r.Get(models.AgentOnboardingReminder)
	}

	text := strings.ToLower(message)
	// Recent memory strengthens intent: a user answering a follow-up about
	// their plan should stay with the nutrition agent.
	for i := len(memory) - 1; i >= 0 && i >= len(memory)-4; i-- {
		text += "\n" + strings.ToLower(memory[i].Text)
	}

	switch {
	case containsAny(text, nutritionKeywords):
		return r.Get(models.AgentNutrition)
	case containsAny(text, salesKeywords):
		return r.Get(models.AgentSales)
	case containsAny(text, supportKeywords):
		return r.Get(models.AgentSupport)
	}
	return r.Get(models.AgentOutContext)
}
