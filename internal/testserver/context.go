package testserver

import (
	"context"
	"net/http"
)

func withAccount(r *http.Request, acc *account) context.Context {
	return context.WithValue(r.Context(), ctxKey{}, acc)
}

func accountFrom(r *http.Request) *account {
	acc, _ := r.Context().Value(ctxKey{}).(*account)
	return acc
}
