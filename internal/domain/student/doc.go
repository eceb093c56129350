// Package student содержит доменную модель студента платформы взаимной оценки.
//
// Пакет определяет:
//
//   - Сущность Student (имя, email, принадлежность к классу)
//   - Интерфейс репозитория Repository
//
// # Принадлежность к классу
//
// Студент состоит не более чем в одном классе. Поле ClassID == nil означает,
// что студент не записан ни в один класс. Ростер класса не хранится отдельно:
// это множество студентов, у которых ClassID совпадает с ID класса.
//
// Снятие студента с класса не выполняется напрямую через Update: сначала
// каскад удаляет его оценки и пересчитывает агрегаты заданий, и только
// последним шагом очищает ClassID.
//
//	s, err := student.New(student.NewParams{
//	    ID:    uuid.NewString(),
//	    Name:  "Ana Souza",
//	    Email: "ana@example.com",
//	})
//	if err != nil {
//	    return err
//	}
//	s.JoinClass(classID)
package student
