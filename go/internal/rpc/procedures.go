package rpc

// Service names. Procedures are "/<service>/<Method>".
const (
	MatchServiceName   = "quizduel.match.v1.MatchService"
	SessionServiceName = "quizduel.session.v1.SessionService"
	AnswerServiceName  = "quizduel.answer.v1.AnswerService"
)

const (
	MatchServiceFindOrCreateSessionProcedure = "/" + MatchServiceName + "/FindOrCreateSession"
	MatchServiceCheckMatchStatusProcedure    = "/" + MatchServiceName + "/CheckMatchStatus"
	MatchServiceCancelProcedure              = "/" + MatchServiceName + "/Cancel"

	SessionServiceGetSessionProcedure    = "/" + SessionServiceName + "/GetSession"
	SessionServiceListSessionsProcedure  = "/" + SessionServiceName + "/ListSessions"
	SessionServiceDeleteSessionProcedure = "/" + SessionServiceName + "/DeleteSession"
	SessionServiceListAnswersProcedure   = "/" + SessionServiceName + "/ListAnswers"

	AnswerServiceSubmitAnswerProcedure = "/" + AnswerServiceName + "/SubmitAnswer"
)

// ServicePath is the mux prefix for a service.
func ServicePath(service string) string {
	return "/" + service + "/"
}
