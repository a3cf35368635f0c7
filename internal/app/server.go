package app

import (
	"log"
	"net/http"
	"time"

	"tush00nka/secujob_messaging/internal/handler"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"
)

type Server struct {
	router  *mux.Router
	handler http.Handler
}

func NewServer(threadHandler *handler.ThreadHandler, gatherer prometheus.Gatherer, origins []string) *Server {
	router := mux.NewRouter()

	// Routes
	router.HandleFunc("/ping", handler.Ping).Methods("GET")
	threadHandler.RegisterRoutes(router)

	router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods("GET")

	// Явно обслуживаем doc.json
	router.HandleFunc("/swagger/doc.json", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, "./docs/swagger.json")
	})

	// Настройка Swagger
	swaggerHandler := httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"), // Важно: относительный путь
	)
	router.PathPrefix("/swagger/").Handler(swaggerHandler)

	cors := handlers.CORS(
		handlers.AllowedOrigins(origins),
		handlers.AllowedMethods([]string{"GET", "POST", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization", "Bearer", "X-Requested-With"}),
	)

	return &Server{router: router, handler: cors(router)}
}

func (s *Server) Run(port string) {
	// WriteTimeout не ставим: WebSocket соединения живут долго
	srv := &http.Server{
		Handler:           s.handler,
		Addr:              ":" + port,
		ReadHeaderTimeout: 15 * time.Second,
	}

	log.Printf("Server starting on port %s", port)
	log.Fatal(srv.ListenAndServe())
}
