package config

type WorkerKeyStruct struct {
	PersistAttemptsQueue  string
	PersistAnswersQueue   string
	PersistIntegrityQueue string
}

var WorkerKey = &WorkerKeyStruct{
	PersistAttemptsQueue:  "persist_attempts_queue",
	PersistAnswersQueue:   "persist_answers_queue",
	PersistIntegrityQueue: "persist_integrity_queue",
}
