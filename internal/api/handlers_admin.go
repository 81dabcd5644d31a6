package api

import (
	"bytes"
	"fmt"
	"net/http"
	"time"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func (s *Server) handleProgressReport(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := s.reports.WriteProgress(r.Context(), &buf); err != nil {
		writeError(w, r, err)
		return
	}

	name := fmt.Sprintf("progress-%s.xlsx", time.Now().UTC().Format("20060102"))
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.WriteHeader(http.StatusOK)
	buf.WriteTo(w)
}
