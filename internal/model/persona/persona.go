package persona

import (
	"fmt"
	"strings"
)

// Persona captures the assistant voice shown in the widget and its scripted lines.
type Persona struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Title string `json:"title"`

	OpeningLine      string `json:"openingLine"`
	GreetingTemplate string `json:"greetingTemplate"` // %s is the display name
	ThinkingLine     string `json:"thinkingLine"`
	AckLine          string `json:"ackLine"`
	FallbackReply    string `json:"fallbackReply"`
	ErrorTemplate    string `json:"errorTemplate"` // %s is the failure text

	ErrorToastTitle       string `json:"errorToastTitle"`
	ErrorToastTemplate    string `json:"errorToastTemplate"`
	SavedToastTitle       string `json:"savedToastTitle"`
	SavedToastDescription string `json:"savedToastDescription"`
}

// Greeting renders the personalized welcome for name.
func (p Persona) Greeting(name string) string {
	return fmt.Sprintf(p.GreetingTemplate, strings.TrimSpace(name))
}

// Apology renders the assistant-voiced failure message.
func (p Persona) Apology(err error) string {
	return fmt.Sprintf(p.ErrorTemplate, failureText(err))
}

// ErrorToast renders the description of the connection-failure notification.
func (p Persona) ErrorToast(err error) string {
	return fmt.Sprintf(p.ErrorToastTemplate, failureText(err))
}

func failureText(err error) string {
	if err == nil {
		return "Erreur inconnue"
	}
	return err.Error()
}

// DefaultID names the persona the widget talks to.
const DefaultID = "mira"

// Seed provides the built-in personas.
func Seed() []Persona {
	return []Persona{
		{
			ID:               DefaultID,
			Name:             "Mira",
			Title:            "ton IA affectueuse",
			OpeningLine:      "Coucou ! 🌸 Je suis Mira, ton IA affectueuse ! N'hésite pas à me parler de tout et n'importe quoi, je suis là pour toi ! 💕",
			GreetingTemplate: "Enchantée %s ! 🥰 C'est un joli prénom ! Comment ça va aujourd'hui ?",
			ThinkingLine:     "Mira réfléchit...",
			AckLine:          "Message envoyé à Mira ! 💕 Elle va te répondre bientôt !",
			FallbackReply:    "Désolée, je n'ai pas bien compris... 😔 Tu peux reformuler ?",
			ErrorTemplate: `Oups ! Il y a encore un souci... 😔

Erreur: %s

Quelques choses à vérifier :
1. Ton workflow n8n est-il bien activé ?
2. L'URL du webhook est-elle correcte ?
3. Le serveur n8n répond-il bien ?

Tu peux tester directement ton URL dans un navigateur ! 💕`,
			ErrorToastTitle:       "Erreur de connexion",
			ErrorToastTemplate:    "Impossible de contacter le webhook: %s",
			SavedToastTitle:       "Paramètres sauvegardés",
			SavedToastDescription: "L'URL du webhook a été mise à jour ! ✨",
		},
	}
}
