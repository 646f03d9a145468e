package ingest

import "sort"

const (
	EntityStudents = "students"
	EntityFaculty  = "faculty"
	EntityProjects = "projects"
	EntityPanels   = "panels"
)

var schemas = map[string]Schema{
	EntityFaculty: {
		Entity:    EntityFaculty,
		Title:     "Faculty",
		Sheet:     "Faculty",
		KeyColumn: "Employee ID",
		Columns: []Column{
			{Name: "Employee ID", Key: "employeeId", Aliases: []string{"EmployeeID", "Emp ID", "employee_id"}, Required: true},
			{Name: "Name", Key: "name", Aliases: []string{"Faculty Name", "Full Name"}, Required: true},
			{Name: "Email", Key: "emailId", Aliases: []string{"Email ID", "Email Address", "emailId"}, Required: true},
			{Name: "Department", Key: "department", Aliases: []string{"Dept"}, Required: true},
			{Name: "Phone Number", Key: "phoneNumber", Aliases: []string{"Phone", "Mobile"}},
			{Name: "Specialization", Key: "specialization", Aliases: []string{"Specializations"}, Multi: true, Hint: "comma-separated"},
		},
		Examples: [][]string{
			{"50392", "Dr. Anita Rao", "anita.rao@vit.ac.in", "Software Systems", "9876543210", "AI/ML, Data Science"},
			{"50418", "Dr. Karthik S", "karthik.s@vit.ac.in", "Networking", "9876501234", "IoT"},
			{"50501", "Prof. Meera Nair", "meera.nair@vit.ac.in", "Information Security", "", "Cyber Security, Blockchain"},
		},
		Rules: []Rule{
			Email("Email"),
			Digits("Phone Number"),
			Distinct("Employee ID"),
			Distinct("Email"),
		},
	},
	EntityStudents: {
		Entity:    EntityStudents,
		Title:     "Students",
		Sheet:     "Students",
		KeyColumn: "Register Number",
		Columns: []Column{
			{Name: "Register Number", Key: "regNo", Aliases: []string{"Reg No", "RegNo", "Registration Number", "regNo"}, Required: true},
			{Name: "Name", Key: "name", Aliases: []string{"Student Name", "Full Name"}, Required: true},
			{Name: "Email", Key: "emailId", Aliases: []string{"Email ID", "Email Address", "emailId"}, Required: true},
			{Name: "Phone Number", Key: "phoneNumber", Aliases: []string{"Phone", "Mobile"}},
		},
		Examples: [][]string{
			{"21BCE1001", "Arjun Kumar", "arjun.kumar2021@vitstudent.ac.in", "9123456780"},
			{"21BCE1002", "Priya Sharma", "priya.sharma2021@vitstudent.ac.in", ""},
		},
		Rules: []Rule{
			Email("Email"),
			Digits("Phone Number"),
			Distinct("Register Number"),
			Distinct("Email"),
		},
	},
	EntityProjects: {
		Entity:    EntityProjects,
		Title:     "Projects",
		Sheet:     "Projects",
		KeyColumn: "Project Name",
		Columns: []Column{
			{Name: "Project Name", Key: "name", Aliases: []string{"Title", "Project Title"}, Required: true},
			{Name: "Guide Employee ID", Key: "guideFacultyEmpId", Aliases: []string{"Guide Emp ID", "Guide ID", "Guide"}, Required: true},
			{Name: "Team Members", Key: "teamMembers", Aliases: []string{"Students", "Team Member Reg Nos", "Members"}, Required: true, Multi: true, Hint: "comma-separated register numbers"},
			{Name: "Type", Key: "type", Aliases: []string{"Project Type"}},
			{Name: "Specialization", Key: "specialization"},
		},
		Examples: [][]string{
			{"Smart Campus Energy Monitor", "50392", "21BCE1001, 21BCE1002", "hardware", "IoT"},
			{"Plagiarism Detection Service", "50418", "21BCE1010, 21BCE1011, 21BCE1012", "software", "AI/ML"},
			{"Secure Voting on Blockchain", "50501", "21BCE1020", "software", "Blockchain"},
		},
		Rules: []Rule{
			MinItems("Team Members", 1),
			MaxItems("Team Members", 4),
			OneOf("Type", "hardware", "software"),
			Distinct("Project Name"),
		},
	},
	EntityPanels: {
		Entity:    EntityPanels,
		Title:     "Panels",
		Sheet:     "Panels",
		KeyColumn: "Panel Name",
		Columns: []Column{
			{Name: "Panel Name", Key: "panelName", Aliases: []string{"Panel"}},
			{Name: "Faculty Employee IDs", Key: "memberEmployeeIds", Aliases: []string{"Members", "Panel Members", "Member Employee IDs", "Employee IDs"}, Required: true, Multi: true, Hint: "comma-separated, at least 2"},
			{Name: "Venue", Key: "venue", Aliases: []string{"Room"}},
			{Name: "Specialization", Key: "specialization"},
		},
		Examples: [][]string{
			{"Panel 1", "50392, 50418", "SJT 501", "AI/ML"},
			{"Panel 2", "50501, 50522, 50530", "TT 304", "Cyber Security"},
		},
		Rules: []Rule{
			MinItems("Faculty Employee IDs", 2),
		},
	},
}

// Lookup 按实体名查找上传格式
func Lookup(entity string) (Schema, bool) {
	s, ok := schemas[entity]
	return s, ok
}

// Entities 支持批量上传的实体
func Entities() []string {
	out := make([]string, 0, len(schemas))
	for k := range schemas {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
