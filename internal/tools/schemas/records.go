package schemas

var (
	taskStatuses  = []string{"pending", "in_progress", "completed"}
	essayStatuses = []string{"draft", "review", "final", "submitted"}
	priorities    = []string{"low", "medium", "high"}
	entities      = []string{"students", "tasks", "essays", "letters", "deadlines", "reminders"}
)

// === STUDENT TOOLS ===

func SearchStudents() *Schema {
	return NewSchema("searchStudents", "Search students by name, school or graduation year").
		AddParam("query", "string", "Name fragment to search for", false).
		AddParam("school", "string", "Filter by school", false).
		AddParam("graduation_year", "integer", "Filter by graduation year", false).
		AddParam("limit", "integer", "Maximum number of results (default 20)", false).
		Build()
}

func GetStudentProfile() *Schema {
	return NewSchema("getStudentProfile", "Get a student's profile with open tasks and essays").
		AddParam("student_id", "string", "Student ID", true).
		Build()
}

// === TASK AND DEADLINE TOOLS ===

func ListTasks() *Schema {
	return NewSchema("listTasks", "List tasks, optionally for one student").
		AddParam("student_id", "string", "Student ID", false).
		AddParamWithEnum("status", "string", "Filter by status", taskStatuses, false).
		Build()
}

func ListDeadlines() *Schema {
	return NewSchema("listDeadlines", "List upcoming application deadlines").
		AddParam("student_id", "string", "Student ID", false).
		AddParam("within_days", "integer", "Only deadlines due within this many days (default 30)", false).
		Build()
}

func CreateTask() *Schema {
	return NewSchema("createTask", "Create a task for a student").
		AddParam("student_id", "string", "Student ID", true).
		AddParam("title", "string", "Task title", true).
		AddParam("description", "string", "Task description", false).
		AddParam("due_date", "string", "Due date (YYYY-MM-DD)", false).
		AddParamWithEnum("priority", "string", "Priority", priorities, false).
		Build()
}

func UpdateTask() *Schema {
	return NewSchema("updateTask", "Update a task's title, status or due date").
		AddParam("task_id", "string", "Task ID", true).
		AddParam("title", "string", "New title", false).
		AddParamWithEnum("status", "string", "New status", taskStatuses, false).
		AddParam("due_date", "string", "New due date (YYYY-MM-DD)", false).
		Build()
}

func SendReminder() *Schema {
	return NewSchema("sendReminder", "Send a reminder message to a student").
		AddParam("student_id", "string", "Student ID", true).
		AddParam("message", "string", "Reminder text", true).
		Build()
}

// === ESSAY AND LETTER TOOLS ===

func GetEssay() *Schema {
	return NewSchema("getEssay", "Read an essay").
		AddParam("essay_id", "string", "Essay ID", true).
		Build()
}

func UpdateEssayStatus() *Schema {
	return NewSchema("updateEssayStatus", "Move an essay to a new review status").
		AddParam("essay_id", "string", "Essay ID", true).
		AddParamWithEnum("status", "string", "New status", essayStatuses, true).
		AddParam("feedback", "string", "Reviewer feedback", false).
		Build()
}

func DraftLetter() *Schema {
	return NewSchema("draftLetter", "Draft a recommendation letter for a student").
		AddParam("student_id", "string", "Student ID", true).
		AddParam("recipient", "string", "Institution or person the letter is addressed to", true).
		AddParam("highlights", "string", "Points the letter should cover", false).
		Build()
}

// === ANALYTICS ===

func AnalyzeRisk() *Schema {
	return NewSchema("analyzeRisk", "Assess a student's risk of missing deadlines").
		AddParam("student_id", "string", "Student ID", true).
		Build()
}

// === ADMIN TOOLS ===

func DeleteRecord() *Schema {
	return NewSchema("deleteRecord", "Permanently delete a record").
		AddParamWithEnum("entity", "string", "Record type", entities, true).
		AddParam("id", "string", "Record ID", true).
		Build()
}

func ExportStudentData() *Schema {
	return NewSchema("exportStudentData", "Export every record held about a student").
		AddParam("student_id", "string", "Student ID", true).
		Build()
}
