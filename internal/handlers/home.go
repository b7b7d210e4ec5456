package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/MegaGrindStone/codex-prime-ui/internal/chat"
)

type homePageData struct {
	Operator string
	Messages []message
	Busy     bool
}

type credentialPageData struct {
	SelectionAvailable bool
	Error              string
}

const selectionUnavailableText = "Please ensure your API_KEY is set in the environment variables."

// HandleHome renders the conversation page, or redirects to the credential page when no usable
// credential exists.
func (m Main) HandleHome(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	ready, err := m.ready(r.Context())
	if err != nil {
		m.logger.Error("Failed to check credential", slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !ready {
		http.Redirect(w, r, credentialPath, http.StatusSeeOther)
		return
	}

	messages := m.store.Messages()
	msgs := make([]message, len(messages))
	for i := range messages {
		msgs[i] = m.renderMessage(messages[i])
	}

	data := homePageData{
		Operator: chat.OperatorName,
		Messages: msgs,
		Busy:     m.busy.Load(),
	}
	if err := m.templates.ExecuteTemplate(w, "home.html", data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// HandleCredential shows the credential selection page on GET and selects the submitted
// "api_key" on POST, redirecting to the conversation on success.
func (m Main) HandleCredential(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		m.renderCredential(w, http.StatusOK, "")
	case http.MethodPost:
		err := m.gate.PromptForSelection(r.Context(), r.FormValue("api_key"))
		switch {
		case err == nil:
			http.Redirect(w, r, "/", http.StatusSeeOther)
		case errors.Is(err, chat.ErrSelectionUnavailable):
			m.renderCredential(w, http.StatusServiceUnavailable, selectionUnavailableText)
		case errors.Is(err, chat.ErrEmptyCredential):
			m.renderCredential(w, http.StatusBadRequest, "An API key is required.")
		default:
			m.logger.Error("Failed to select credential", slog.String(errLoggerKey, err.Error()))
			m.renderCredential(w, http.StatusInternalServerError, "Failed to store the API key.")
		}
	default:
		m.logger.Error("Method not allowed", slog.String("method", r.Method))
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (m Main) renderCredential(w http.ResponseWriter, status int, errText string) {
	data := credentialPageData{
		SelectionAvailable: m.gate.SelectionAvailable(),
		Error:              errText,
	}
	if !data.SelectionAvailable && errText == "" {
		data.Error = selectionUnavailableText
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := m.templates.ExecuteTemplate(w, "credential.html", data); err != nil {
		m.logger.Error("Failed to render credential page", slog.String(errLoggerKey, err.Error()))
	}
}
