package api

import "net/http"

func listTemplatesHandler(svc SchedulingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, ok := uuidParam(w, r, "providerId")
		if !ok {
			return
		}
		includeInactive := r.URL.Query().Get("includeInactive") == "true"

		templates, err := svc.ListTemplates(r.Context(), providerID, includeInactive)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		resp := make([]TemplateResponse, 0, len(templates))
		for i := range templates {
			resp = append(resp, toTemplateResponse(&templates[i]))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func createTemplateHandler(svc SchedulingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, ok := uuidParam(w, r, "providerId")
		if !ok {
			return
		}

		var req TemplateRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		t, err := req.toTemplate()
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		t.ProviderID = providerID

		if err := svc.CreateTemplate(r.Context(), &t); err != nil {
			handleServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusCreated, toTemplateResponse(&t))
	}
}

func getTemplateHandler(svc SchedulingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}

		t, err := svc.GetTemplate(r.Context(), id)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toTemplateResponse(t))
	}
}

func updateTemplateHandler(svc SchedulingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}

		var req TemplateRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		t, err := req.toTemplate()
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		t.ID = id

		if err := svc.UpdateTemplate(r.Context(), &t); err != nil {
			handleServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toTemplateResponse(&t))
	}
}

func setTemplateActiveHandler(svc SchedulingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}

		var req SetActiveRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if req.Active == nil {
			handleServiceError(w, r, fieldError("active", "active is required"))
			return
		}

		t, err := svc.SetTemplateActive(r.Context(), id, *req.Active)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toTemplateResponse(t))
	}
}

func deleteTemplateHandler(svc SchedulingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}

		if err := svc.DeleteTemplate(r.Context(), id); err != nil {
			handleServiceError(w, r, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}
