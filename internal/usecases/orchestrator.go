package usecases

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"onboardingbot/internal/entities"
	"onboardingbot/internal/interfaces"
)

const recentTranscriptTurns = 6

const baseStyleIT = `Sei un assistente per l'onboarding InPlace.it, bilingue (Italiano/English).
Regole:
- Riconosci la lingua del messaggio corrente e rispondi in quella lingua. Se l'utente cambia lingua, cambia anche tu.
- Niente frasi robotiche o ripetitive; varia le formulazioni. Evita "Come posso aiutarti oggi?".
- Risposte brevi (1-6 frasi), specifiche al contesto; non ripetere saluti.
- Ricorda quanto deciso prima e proponi un prossimo passo chiaro e coerente.
- Non chiedere le stesse info due volte se gia' fornite.
- Se l'utente chiede un umano, offri l'escalation. Non inventare dati.`

const baseStyleEN = `You are an InPlace.it onboarding assistant, bilingual (English/Italian).
Rules:
- Detect the language of the CURRENT message and reply in that language. If the user switches languages mid-chat, you also switch.
- No robotic or repetitive phrasing; avoid "How can I assist you today?". Vary wording.
- Keep replies short (1-6 sentences), context-specific; don't repeat greetings.
- Remember prior decisions and always propose a clear, coherent next step.
- Don't ask for the same info twice if already provided.
- If the user asks for a human, offer escalation. Do not fabricate facts.`

const firstContactIT = `Se questo e' il PRIMO messaggio dell'utente:
- Se il messaggio e' un semplice saluto o apertura ("ciao", "buongiorno", ecc.), rispondi con un benvenuto caldo e breve, spiega in 1 riga come puoi aiutare (onboarding InPlace: registrazione, documenti, firme, accessi) e chiedi gentilmente da dove vuole iniziare.
- Se il messaggio e' gia' una domanda/azione (non un saluto), vai dritto al punto: rispondi e proponi il passo successivo senza introdurre formule generiche.`

const firstContactEN = `If this is the user's FIRST message:
- If it's a simple greeting/opener ("hi", "hello", etc.), reply with a warm, brief welcome, explain in 1 line how you help (InPlace onboarding: registration, docs, signatures, access) and ask politely where they want to begin.
- If it's already a question/action (not just a greeting), get straight to it: answer and propose the next step, no generic intros.`

// Orchestrator produces exactly one user-facing reply per inbound message,
// backed by exactly one model call with a strict JSON output contract.
type Orchestrator struct {
	model         interfaces.ModelClient
	store         interfaces.CandidateStore
	mainModel     string
	knowledgeBase string
	logger        *zap.Logger
}

func NewOrchestrator(model interfaces.ModelClient, store interfaces.CandidateStore, mainModel, knowledgeBase string, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		model:         model,
		store:         store,
		mainModel:     mainModel,
		knowledgeBase: knowledgeBase,
		logger:        logger,
	}
}

type orchestratorOutput struct {
	Reply       json.RawMessage         `json:"reply"`
	Intent      string                  `json:"intent"`
	NextStep    string                  `json:"next_step"`
	StateUpdate *entities.StateSnapshot `json:"state_update"`
}

func orchestratorSchema(lang string) string {
	langName := "English"
	if lang == "it" {
		langName = "Italian"
	}
	return fmt.Sprintf(`Output ONLY valid JSON with this schema:

{
  "reply": "string - user-facing answer in %s, concise, human-like",
  "intent": "string - inferred intent (greeting, registration_help, docs_help, signature_help, access_help, proceed_step, thanks, goodbye, other)",
  "next_step": "string - suggested next move (e.g., ask for doc X, confirm step Y)",
  "state_update": {
      "step": "string|null - current onboarding step if applicable",
      "flags": {"wants_human": false, "confused": false, "frustrated": false},
      "notes": "string - short memory to keep context (<=200 chars)"
  }
}

Behavioral rules:
- Use current-message language; if the user switches languages, switch too automatically.
- Never claim you can help only in one language - you are bilingual.
- Do NOT restart the flow on "ok/thanks/hi". Continue smoothly with a coherent next step.
- Avoid repetitive greetings or apologies.`, langName)
}

// buildDialogueMessages assembles the full prompt for a single model call:
// persona + first-contact guidance + knowledge base, the output schema,
// optional summary and state memory, the recent transcript, the
// first-contact flag, and the current user message, in that order.
func (o *Orchestrator) buildDialogueMessages(c *entities.Candidate, userMsg, lang string, isFirstInbound bool) []interfaces.ChatMessage {
	lastState, lastSummary := StateObjects(c.History)

	style, firstContact := baseStyleEN, firstContactEN
	if lang == "it" {
		style, firstContact = baseStyleIT, firstContactIT
	}
	systemPrompt := style + "\n" + firstContact + "\n\nKnowledge base:\n" + o.knowledgeBase

	messages := []interfaces.ChatMessage{
		{Role: "system", Content: systemPrompt},
		{Role: "system", Content: orchestratorSchema(lang)},
	}

	if lastSummary != "" {
		messages = append(messages, interfaces.ChatMessage{
			Role:    "system",
			Content: "Conversation summary so far:\n" + lastSummary,
		})
	}
	if lastState != nil {
		raw, err := json.Marshal(lastState)
		if err == nil {
			messages = append(messages, interfaces.ChatMessage{
				Role:    "system",
				Content: "State memory:\n" + string(raw),
			})
		}
	}

	recent := c.Turns()
	if len(recent) > recentTranscriptTurns {
		recent = recent[len(recent)-recentTranscriptTurns:]
	}
	if len(recent) > 0 {
		messages = append(messages, interfaces.ChatMessage{
			Role:    "system",
			Content: "Recent transcript:\n" + formatTranscript(recent),
		})
	}

	firstFlag := "FIRST_CONTACT: false"
	if isFirstInbound {
		firstFlag = "FIRST_CONTACT: true"
	}
	messages = append(messages,
		interfaces.ChatMessage{Role: "system", Content: firstFlag},
		interfaces.ChatMessage{Role: "user", Content: userMsg},
	)
	return messages
}

// Reply issues the orchestrated model call and returns a sanitized
// user-facing string. It never returns an error: model failures degrade to a
// fixed apology in the detected language, and a state_update in the output is
// persisted best-effort.
func (o *Orchestrator) Reply(ctx context.Context, c *entities.Candidate, incoming string) string {
	lang := DetectLanguage(incoming)
	// The inbound message has already been appended, so first contact means
	// exactly one user entry.
	isFirstInbound := c.UserMessageCount() == 1

	messages := o.buildDialogueMessages(c, incoming, lang, isFirstInbound)

	raw, err := o.model.ChatCompletion(ctx, interfaces.ChatRequest{
		Model:            o.mainModel,
		Messages:         messages,
		Temperature:      0.7,
		TopP:             1,
		FrequencyPenalty: 0.7,
		PresencePenalty:  0.3,
		Timeout:          8 * time.Second,
	})
	if err != nil {
		o.logger.Warn("orchestrator model call failed", zap.String("phone", c.PhoneNumber), zap.Error(err))
		return apology(lang)
	}

	reply, stateUpdate := parseOrchestratorOutput(raw, o.logger)

	if stateUpdate != nil {
		if err := c.AppendState(*stateUpdate); err != nil {
			o.logger.Warn("failed to serialize state update", zap.Error(err))
		} else if err := o.store.Save(ctx, c); err != nil {
			o.logger.Warn("failed to save state update", zap.String("phone", c.PhoneNumber), zap.Error(err))
		}
	}

	return reply
}

var (
	codeFenceOpenRE  = regexp.MustCompile("(?m)^```\\w*\\s*\\n?")
	codeFenceCloseRE = regexp.MustCompile("(?m)\\n?```\\s*$")
	replyFieldRE     = regexp.MustCompile(`(?s)"reply"\s*:\s*"((?:[^"\\]|\\.)*)"`)
)

func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.Contains(s, "```") {
		return s
	}
	s = codeFenceOpenRE.ReplaceAllString(s, "")
	s = codeFenceCloseRE.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

func looksLikeJSONObject(s string) bool {
	return strings.HasPrefix(s, "{") && strings.HasSuffix(s, "}")
}

// parseOrchestratorOutput enforces the output contract. The returned reply is
// never a JSON-looking string except the deliberate fixed fallback.
func parseOrchestratorOutput(raw string, logger *zap.Logger) (string, *entities.StateSnapshot) {
	cleaned := stripCodeFences(raw)

	var out orchestratorOutput
	if err := json.Unmarshal([]byte(cleaned), &out); err != nil {
		// Not a single valid JSON object. Malformed JSON gets one manual
		// reply-field extraction; plain text is the reply verbatim.
		if looksLikeJSONObject(cleaned) {
			if m := replyFieldRE.FindStringSubmatch(cleaned); m != nil {
				text := strings.NewReplacer(`\"`, `"`, `\n`, "\n", `\\`, `\`).Replace(m[1])
				text = strings.TrimSpace(text)
				if text != "" && !looksLikeJSONObject(text) {
					return text, nil
				}
			}
			logger.Warn("malformed orchestrator JSON, using fallback")
			return "Ok.", nil
		}
		return cleaned, nil
	}

	return sanitizeReply(out.Reply, logger), out.StateUpdate
}

// sanitizeReply extracts a plain string from the reply field. Missing, empty,
// list or object replies fall back to "Ok.". A string that itself looks like
// a JSON object is unwrapped exactly once to recover a nested reply field;
// anything still JSON-shaped after that falls back.
func sanitizeReply(raw json.RawMessage, logger *zap.Logger) string {
	if len(raw) == 0 || string(raw) == "null" {
		return "Ok."
	}

	var reply string
	if err := json.Unmarshal(raw, &reply); err != nil {
		// reply was a list, object or other non-string shape
		logger.Warn("reply field is not a string, using fallback")
		return "Ok."
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return "Ok."
	}

	if looksLikeJSONObject(reply) {
		// The model echoed its own envelope inside reply. Single-level
		// unwrap only, never recursive.
		var nested struct {
			Reply string `json:"reply"`
		}
		if err := json.Unmarshal([]byte(reply), &nested); err != nil {
			logger.Warn("JSON-shaped reply could not be unwrapped, using fallback")
			return "Ok."
		}
		inner := strings.TrimSpace(nested.Reply)
		if inner == "" || looksLikeJSONObject(inner) {
			logger.Warn("nested reply missing or still JSON-shaped, using fallback")
			return "Ok."
		}
		return inner
	}

	return reply
}

func apology(lang string) string {
	if lang == "it" {
		return "Spiacente, si e' verificato un errore. Riprova piu' tardi."
	}
	return "Sorry, something went wrong. Please try again later."
}
