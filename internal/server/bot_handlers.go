package server

import (
	"net/http"

	"github.com/luohy15/y-agent/internal/store"
)

func (s *Server) handleListBots(w http.ResponseWriter, r *http.Request) {
	bots, err := s.store.ListBots(r.Context(), userID(r))
	if err != nil {
		httpError(w, http.StatusInternalServerError, "failed to list bots")
		return
	}
	if bots == nil {
		bots = []store.BotConfig{}
	}
	writeJSON(w, http.StatusOK, bots)
}

func (s *Server) handleSaveBot(w http.ResponseWriter, r *http.Request) {
	var bot store.BotConfig
	if err := decodeJSON(r, &bot); err != nil || bot.Name == "" {
		httpError(w, http.StatusBadRequest, "bot name is required")
		return
	}
	if err := s.store.SaveBot(r.Context(), userID(r), bot); err != nil {
		httpError(w, http.StatusInternalServerError, "failed to save bot")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleDeleteBot(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		httpError(w, http.StatusBadRequest, "name is required")
		return
	}
	if name == store.DefaultBotName {
		httpError(w, http.StatusBadRequest, "the default bot cannot be deleted")
		return
	}
	if err := s.store.DeleteBot(r.Context(), userID(r), name); err != nil {
		httpError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleGetVM(w http.ResponseWriter, r *http.Request) {
	vm, err := s.store.GetVM(r.Context(), userID(r))
	if err != nil {
		httpError(w, http.StatusInternalServerError, "failed to load vm config")
		return
	}
	if vm == nil {
		httpError(w, http.StatusNotFound, "no vm config")
		return
	}
	writeJSON(w, http.StatusOK, vm)
}

func (s *Server) handleSaveVM(w http.ResponseWriter, r *http.Request) {
	var vm store.VMConfig
	if err := decodeJSON(r, &vm); err != nil || vm.VMName == "" {
		httpError(w, http.StatusBadRequest, "vm_name is required")
		return
	}
	if err := s.store.SaveVM(r.Context(), userID(r), vm); err != nil {
		httpError(w, http.StatusInternalServerError, "failed to save vm config")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
